package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cachectl/internal/blobcache"
)

var (
	setTypeName string
	setTTL      time.Duration
)

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Insert or replace a cache entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		defer c.Close()

		ttl := setTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		entry := blobcache.Entry{
			Key:        args[0],
			TypeName:   setTypeName,
			Value:      args[1],
			Expiration: time.Now().UTC().Add(ttl),
		}
		if err := c.Insert(cmd.Context(), entry); err != nil {
			return fmt.Errorf("set: %w", err)
		}
		if jsonOut {
			return outputJSON(map[string]any{"key": args[0], "ok": true})
		}
		fmt.Printf("set %s\n", args[0])
		return nil
	},
}

func init() {
	setCmd.Flags().StringVar(&setTypeName, "type", "", "optional type name, for later lookup with getByType/invalidate --type")
	setCmd.Flags().DurationVar(&setTTL, "ttl", 24*time.Hour, "time until the entry expires")
}
