package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a cache entry by key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		var value string
		entry, ok, err := c.Get(cmd.Context(), args[0], &value)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if !ok {
			if jsonOut {
				return outputJSON(map[string]any{"key": args[0], "found": false})
			}
			fmt.Fprintf(os.Stderr, "key %q not found\n", args[0])
			os.Exit(1)
		}

		if jsonOut {
			return outputJSON(map[string]any{
				"key":        entry.Key,
				"found":      true,
				"type":       entry.TypeName,
				"value":      value,
				"expiration": entry.Expiration,
				"created_at": entry.CreatedAt,
			})
		}
		fmt.Printf("%s = %s\n", entry.Key, value)
		if entry.TypeName != "" {
			fmt.Printf("  type:       %s\n", entry.TypeName)
		}
		fmt.Printf("  expires:    %s\n", entry.Expiration.Format("2006-01-02T15:04:05Z07:00"))
		fmt.Printf("  created:    %s\n", entry.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	},
}
