package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	invalidateTypes []string
	invalidateAll   bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [keys...]",
	Short: "Remove entries by key, by type, or the entire cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx := cmd.Context()
		switch {
		case invalidateAll:
			if err := c.InvalidateAll(ctx); err != nil {
				return fmt.Errorf("invalidate --all: %w", err)
			}
		case len(invalidateTypes) > 0:
			if err := c.InvalidateByType(ctx, invalidateTypes...); err != nil {
				return fmt.Errorf("invalidate --type: %w", err)
			}
		case len(args) > 0:
			if err := c.Invalidate(ctx, args...); err != nil {
				return fmt.Errorf("invalidate: %w", err)
			}
		default:
			return fmt.Errorf("invalidate: specify keys, --type, or --all")
		}

		if jsonOut {
			return outputJSON(map[string]any{"ok": true})
		}
		fmt.Println("invalidated")
		return nil
	},
}

func init() {
	invalidateCmd.Flags().StringSliceVar(&invalidateTypes, "type", nil, "invalidate every entry with one of these type names")
	invalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "invalidate every entry in the cache")
}
