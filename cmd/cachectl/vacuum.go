package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Delete expired rows and compact the database file",
	Long: `Vacuum drains every request queued ahead of it, deletes expired rows
in its own transaction, then runs SQLite's VACUUM outside any
transaction. No other chunk runs while VACUUM is in progress, so this
command can block briefly behind whatever work is already queued.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Vacuum(cmd.Context()); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
		if jsonOut {
			return outputJSON(map[string]any{"ok": true})
		}
		fmt.Println("vacuumed")
		return nil
	},
}
