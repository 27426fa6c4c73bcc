package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and last-vacuum time for the cache database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		s, err := c.Stats()
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}

		if jsonOut {
			return outputJSON(map[string]any{
				"row_count":         s.RowCount,
				"expired_row_count": s.ExpiredRowCount,
				"last_vacuum_at":    formatTicks(s.LastVacuumAt),
			})
		}
		fmt.Printf("rows:          %d\n", s.RowCount)
		fmt.Printf("expired rows:  %d\n", s.ExpiredRowCount)
		fmt.Printf("last vacuum:   %s\n", formatTicks(s.LastVacuumAt))
		return nil
	},
}
