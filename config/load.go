package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "SCOPEZ_"

// ErrRead is returned when the configuration file cannot be read or parsed.
var ErrRead = errors.New("read configuration")

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrRead, path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrRead, path, err)
		}
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg, os.LookupEnv)
	// Overrides may enable the pool without sizing its queue.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnvOverrides applies SCOPEZ_SECTION_FIELD variables. Values that do
// not parse are ignored.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) {
	env := func(key string) (string, bool) {
		val, ok := lookup(EnvPrefix + key)
		if !ok {
			return "", false
		}
		val = strings.TrimSpace(val)
		return val, val != ""
	}
	str := func(key string, dst *string) {
		if val, ok := env(key); ok {
			*dst = val
		}
	}
	boolean := func(key string, dst *bool) {
		if val, ok := env(key); ok {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if val, ok := env(key); ok {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
			}
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if val, ok := env("CONSOLE_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Console.Enabled = &b
		}
	}
	boolean("CONSOLE_COLOR", &cfg.Console.Color)
	boolean("CONSOLE_ONLY_FAILURES", &cfg.Console.OnlyFailures)
	boolean("CONSOLE_ROOTS_ONLY", &cfg.Console.RootsOnly)

	boolean("SLOG_ENABLED", &cfg.Slog.Enabled)
	boolean("SLOG_ROOTS_ONLY", &cfg.Slog.RootsOnly)

	boolean("SQLITE_ENABLED", &cfg.SQLite.Enabled)
	str("SQLITE_PATH", &cfg.SQLite.Path)
	integer("SQLITE_BATCH_SIZE", &cfg.SQLite.BatchSize)
	if val, ok := env("SQLITE_BUSY_TIMEOUT"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.SQLite.BusyTimeout = d
		}
	}

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	str("METRICS_LISTEN_ADDRESS", &cfg.Metrics.ListenAddress)
	str("METRICS_PATH", &cfg.Metrics.Path)

	integer("WORKERS_SIZE", &cfg.Workers.Size)
	integer("WORKERS_QUEUE", &cfg.Workers.Queue)
}
