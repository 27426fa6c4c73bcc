// Package cacheconfig loads cmd/cachectl's configuration the way the
// teacher's CLI does: github.com/spf13/viper layering a config file,
// environment variables (CACHECTL_ prefix), and command-line flags, with
// github.com/spf13/cobra flags bound directly into the same Viper
// instance.
package cacheconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved configuration for one cachectl invocation.
type Config struct {
	DBPath      string        `mapstructure:"db"`
	BusyTimeout time.Duration `mapstructure:"busy-timeout"`
	LogLevel    string        `mapstructure:"log-level"`
	LogFile     string        `mapstructure:"log-file"`
	LogJSON     bool          `mapstructure:"log-json"`
}

// defaultDBPath mirrors the teacher's os.UserCacheDir()-rooted default
// (spec.md's "platform file-location conventions" out-of-scope note
// still allows a single sensible default).
func defaultDBPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "cachectl", "cache.db")
	}
	return "cachectl-cache.db"
}

// BindFlags registers cachectl's persistent flags on flags and binds
// each one into v, so flag > env > config-file > default precedence
// falls out of Viper's own resolution order.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("db", defaultDBPath(), "path to the cache database file")
	flags.Duration("busy-timeout", 30*time.Second, "SQLite busy timeout")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "log file path (empty logs to stderr)")
	flags.Bool("log-json", false, "emit logs as JSON")

	for _, name := range []string{"db", "busy-timeout", "log-level", "log-file", "log-json"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

// Load reads config from (in ascending precedence) the config file
// (if present), CACHECTL_-prefixed environment variables, and whatever
// flags were already bound into v via BindFlags.
func Load(v *viper.Viper, configFile string) (Config, error) {
	v.SetEnvPrefix("CACHECTL")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("cacheconfig: read config file: %w", err)
		}
	} else {
		v.SetConfigName("cachectl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cachectl"))
		}
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("cacheconfig: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("cacheconfig: unmarshal: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath()
	}
	return cfg, nil
}
