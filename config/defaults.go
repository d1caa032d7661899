package config

import "time"

// Default values for configuration fields.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultSQLitePath        = "scopez.sqlite3"
	DefaultSQLiteBatchSize   = 100
	DefaultSQLiteBusyTimeout = 5 * time.Second

	DefaultMetricsNamespace     = "scopez"
	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultMetricsPath          = "/metrics"

	DefaultWorkersQueue = 1000
)

// Default returns a configuration with every default applied. It is used
// when no configuration file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}
	if cfg.SQLite.BatchSize == 0 {
		cfg.SQLite.BatchSize = DefaultSQLiteBatchSize
	}
	if cfg.SQLite.BusyTimeout == 0 {
		cfg.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Workers.Size > 0 && cfg.Workers.Queue == 0 {
		cfg.Workers.Queue = DefaultWorkersQueue
	}
}
