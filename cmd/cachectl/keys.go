package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every live key in the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		keys, err := c.Keys(cmd.Context())
		if err != nil {
			return fmt.Errorf("keys: %w", err)
		}

		if jsonOut {
			return outputJSON(map[string]any{"keys": keys, "count": len(keys)})
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}
