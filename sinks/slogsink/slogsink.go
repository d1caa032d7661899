// Package slogsink emits each finalized record as one structured log entry.
package slogsink

import (
	"context"
	"log/slog"

	"github.com/zoobzio/scopez"
)

// Messages used for the emitted entries.
const (
	MessageSuccess = "trace was successful"
	MessageFailure = "trace caught a failure"
)

// Options configures a Sink.
type Options struct {
	// Logger receives the entries. Defaults to slog.Default().
	Logger *slog.Logger

	// RootsOnly skips nested records.
	RootsOnly bool

	// Level is used for records without a failure. Records with a failure
	// are always logged at slog.LevelError.
	Level slog.Level
}

// Sink logs finalized records through log/slog.
type Sink struct {
	logger    *slog.Logger
	level     slog.Level
	rootsOnly bool
}

// New creates a slog sink.
func New(opts Options) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		logger:    logger.With("component", "scopez"),
		level:     opts.Level,
		rootsOnly: opts.RootsOnly,
	}
}

// Finalize logs r. It has the scopez.Finalizer signature.
func (s *Sink) Finalize(r *scopez.Record) {
	if s.rootsOnly && !r.IsRoot() {
		return
	}

	attrs := []slog.Attr{
		slog.String("record_id", r.ID()),
		slog.Int("events", r.Len()),
		slog.Duration("duration", r.Duration()),
	}
	if parent := r.ParentID(); parent != "" {
		attrs = append(attrs, slog.String("parent_id", parent))
	}

	level, msg := s.level, MessageSuccess
	if last, ok := r.LastFailure(); ok {
		level, msg = slog.LevelError, MessageFailure
		attrs = append(attrs, slog.String("failure", last.String()))
	}
	attrs = append(attrs, slog.String("trace", r.Render()))

	s.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
