package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Block until every request enqueued so far has committed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Flush(cmd.Context()); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		if jsonOut {
			return outputJSON(map[string]any{"ok": true})
		}
		fmt.Println("flushed")
		return nil
	},
}
