// Package config loads the settings of the scopez host: which sinks receive
// finalized records, how the host logs, and how async listeners are run.
//
// Configuration is read from YAML, completed with defaults and then
// overridden by SCOPEZ_<SECTION>_<FIELD> environment variables.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Console ConsoleConfig `yaml:"console"`
	Slog    SlogConfig    `yaml:"slog"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Metrics MetricsConfig `yaml:"metrics"`
	Workers WorkersConfig `yaml:"workers"`
}

// LogConfig controls the host's own structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// ConsoleConfig controls the console sink.
type ConsoleConfig struct {
	Enabled      *bool `yaml:"enabled"`
	Color        bool  `yaml:"color"`
	OnlyFailures bool  `yaml:"only_failures"`
	RootsOnly    bool  `yaml:"roots_only"`
}

// SlogConfig controls the structured logging sink.
type SlogConfig struct {
	Enabled   bool `yaml:"enabled"`
	RootsOnly bool `yaml:"roots_only"`
}

// SQLiteConfig controls the SQLite sink.
type SQLiteConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Path        string        `yaml:"path"`
	BatchSize   int           `yaml:"batch_size"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// MetricsConfig controls the Prometheus sink and its HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Namespace     string `yaml:"namespace"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// WorkersConfig sizes the pool running async finalize listeners.
// Zero Size disables the pool.
type WorkersConfig struct {
	Size  int `yaml:"size"`
	Queue int `yaml:"queue"`
}

// ConsoleEnabled reports whether the console sink is on. It defaults to true
// when the field is absent.
func (c *Config) ConsoleEnabled() bool {
	return c.Console.Enabled == nil || *c.Console.Enabled
}
