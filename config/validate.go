package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path of the field, e.g. "sqlite.batch_size".
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s: %s", ErrInvalid, e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d errors", ErrInvalid, len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Is lets errors.Is match ErrInvalid.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Validate returns a ValidationError listing every invalid field, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		add("log.format", "must be text or json, got %q", cfg.Log.Format)
	}

	if cfg.SQLite.Enabled && cfg.SQLite.Path == "" {
		add("sqlite.path", "required when sqlite is enabled")
	}
	if cfg.SQLite.BatchSize < 1 {
		add("sqlite.batch_size", "must be at least 1, got %d", cfg.SQLite.BatchSize)
	}
	if cfg.SQLite.BusyTimeout < 0 {
		add("sqlite.busy_timeout", "must not be negative")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.ListenAddress == "" {
			add("metrics.listen_address", "required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			add("metrics.path", "must start with /, got %q", cfg.Metrics.Path)
		}
	}

	if cfg.Workers.Size < 0 {
		add("workers.size", "must not be negative, got %d", cfg.Workers.Size)
	}
	if cfg.Workers.Size > 0 && cfg.Workers.Queue < 1 {
		add("workers.queue", "must be at least 1 when workers are enabled, got %d", cfg.Workers.Queue)
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}
