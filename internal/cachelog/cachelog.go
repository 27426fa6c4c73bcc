// Package cachelog configures the structured logging cmd/cachectl and
// its daemon mode write through, following the teacher's daemon logger
// wrapper: log/slog with optional lumberjack file rotation. The core
// internal/opqueue package never imports this; it takes a *slog.Logger
// directly so the queue stays dependency-light and independently
// testable, and cachelog only wires up handlers/sinks for the CLI.
package cachelog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel converts a log level string (case-insensitive) to a
// slog.Level, defaulting to Info for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config controls where and how cachectl logs. An empty FilePath logs to
// stderr only. Level is a slog.Leveler rather than a concrete slog.Level
// so callers that need the running logger to pick up a level change (a
// config-file watch, say) can pass a *slog.LevelVar and call Set on it
// later instead of rebuilding the logger.
type Config struct {
	FilePath   string
	Level      slog.Leveler
	JSON       bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns the rotation defaults the daemon uses when the
// caller doesn't override them.
func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		MaxSizeMB:  50,
		MaxBackups: 7,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// New builds a *slog.Logger per cfg. When cfg.FilePath is set, output is
// rotated via lumberjack; otherwise it goes to stderr. The returned
// io.Closer flushes/closes the rotation file and is a no-op for the
// stderr case.
func New(cfg Config) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = lj
		closer = lj
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer
}

// Discard returns a logger that drops everything, for tests that need a
// logger but don't care about its output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
