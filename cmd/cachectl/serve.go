package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"cachectl/internal/blobcache"
	"cachectl/internal/cachelock"
	"cachectl/internal/cachelog"
)

var watchConfig bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache worker as a long-lived daemon",
	Long: `serve opens the cache database, takes the single-instance daemon
lock alongside it, and keeps the operation queue's worker goroutine
running until SIGINT or SIGTERM, at which point it drains and shuts
down gracefully via Queue.Shutdown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lockDir := filepath.Dir(cfg.DBPath)
		lock, running, pid, err := cachelock.TryLock(lockDir, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("acquire daemon lock: %w", err)
		}
		if running {
			return fmt.Errorf("a cachectl daemon is already running for %s (pid %d)", cfg.DBPath, pid)
		}
		defer lock.Unlock()

		logger := newLogger()

		c, err := openCache()
		if err != nil {
			return err
		}

		logger.Info("serve: started", "db", cfg.DBPath, "pid", os.Getpid())

		var configWatcher *fsnotify.Watcher
		if watchConfig && cfgFile != "" {
			configWatcher, err = fsnotify.NewWatcher()
			if err != nil {
				logger.Warn("serve: failed to start config watcher", "error", err)
			} else {
				defer configWatcher.Close()
				if err := configWatcher.Add(cfgFile); err != nil {
					logger.Warn("serve: failed to watch config file", "error", err, "path", cfgFile)
				} else {
					go watchConfigFile(cmd.Context(), configWatcher, logger, c)
				}
			}
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		signal.Stop(quit)

		logger.Info("serve: shutting down")
		if err := c.Close(); err != nil {
			logger.Error("serve: error during shutdown", "error", err)
		}
		logger.Info("serve: stopped")
		return nil
	},
}

// watchConfigFile re-reads log-level and busy-timeout from the config
// file on every write and applies both to the already-running daemon:
// logLevel.Set swaps the level the open logger's handler reads on every
// call, and c.SetBusyTimeout runs PRAGMA busy_timeout against the
// already-open connection. Neither restarts the daemon or reopens the
// database (only future cachectl invocations pick up a changed db
// path, since that does mean a different file).
func watchConfigFile(ctx context.Context, w *fsnotify.Watcher, logger *slog.Logger, c *blobcache.Cache) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			newCfg, err := loadConfigFile()
			if err != nil {
				logger.Warn("serve: failed to reload config", "error", err)
				continue
			}
			logLevel.Set(cachelog.ParseLevel(newCfg.LogLevel))
			if err := c.SetBusyTimeout(newCfg.BusyTimeout); err != nil {
				logger.Warn("serve: failed to apply new busy-timeout", "error", err)
				continue
			}
			logger.Info("serve: config file changed", "log-level", newCfg.LogLevel, "busy-timeout", newCfg.BusyTimeout)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("serve: config watcher error", "error", err)
		}
	}
}

func init() {
	serveCmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reload log-level and busy-timeout when --config's file changes")
}
