package cacheconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestLoad_DefaultsWhenNoFileOrEnv(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags, v)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BusyTimeout != 30*time.Second {
		t.Errorf("want default BusyTimeout 30s, got %v", cfg.BusyTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("want default LogLevel info, got %q", cfg.LogLevel)
	}
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cachectl.yaml")
	contents := "db: " + filepath.Join(dir, "custom.db") + "\nlog-level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags, v)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("want log-level debug from file, got %q", cfg.LogLevel)
	}
}

func TestLoad_FlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cachectl.yaml")
	if err := os.WriteFile(path, []byte("log-level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags, v)
	if err := flags.Parse([]string{"--log-level=error"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("want flag to win over config file, got %q", cfg.LogLevel)
	}
}
