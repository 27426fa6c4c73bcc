package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cachectl/internal/blobcache"
	"cachectl/internal/cacheconfig"
	"cachectl/internal/cachelog"
)

var (
	v         = viper.New()
	cfgFile   string
	jsonOut   bool
	cfg       cacheconfig.Config
	logCloser io.Closer
	logLevel  = &slog.LevelVar{}
)

var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Operate a persistent key/value blob cache backed by embedded SQLite",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = cacheconfig.Load(v, cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "path to a cachectl config file")
	flags.BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	cacheconfig.BindFlags(flags, v)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(vacuumCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// newLogger builds cachectl's logger around the shared logLevel var
// rather than a fixed slog.Level, so serveCmd's --watch-config path can
// later raise or lower the running logger's verbosity via logLevel.Set
// without rebuilding the handler.
func newLogger() *slog.Logger {
	logLevel.Set(cachelog.ParseLevel(cfg.LogLevel))
	l, closer := cachelog.New(cachelog.Config{
		FilePath: cfg.LogFile,
		Level:    logLevel,
		JSON:     cfg.LogJSON,
	})
	logCloser = closer
	return l
}

// openCache opens the configured cache database with the resolved
// busy-timeout and logger. Every leaf command opens its own *Cache and
// closes it before returning, rather than sharing one across the process
// (serveCmd is the exception: it holds the cache for its whole lifetime).
func openCache() (*blobcache.Cache, error) {
	c, err := blobcache.Open(cfg.DBPath,
		blobcache.WithBusyTimeout(cfg.BusyTimeout),
		blobcache.WithLogger(newLogger()),
	)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", cfg.DBPath, err)
	}
	return c, nil
}

// loadConfigFile re-resolves cacheconfig.Config from cfgFile/env/flags,
// for serveCmd's --watch-config reload path. It does not mutate the
// package-level cfg the rest of the process is using.
func loadConfigFile() (cacheconfig.Config, error) {
	return cacheconfig.Load(v, cfgFile)
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTicks renders a tick (Unix nanoseconds, UTC) as RFC3339, or "-"
// for the zero tick (e.g. an entry with no expiration sentinel).
func formatTicks(ticks int64) string {
	if ticks == 0 {
		return "-"
	}
	return time.Unix(0, ticks).UTC().Format(time.RFC3339)
}
