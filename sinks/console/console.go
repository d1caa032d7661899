// Package console prints finalized records to a terminal or any io.Writer.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/zoobzio/scopez"
)

// Options configures a Sink.
type Options struct {
	// Writer receives the output. Defaults to os.Stdout.
	Writer io.Writer

	// Color highlights the header of each record: red when a failure was
	// logged, green otherwise.
	Color bool

	// OnlyFailures skips records without a failure.
	OnlyFailures bool

	// RootsOnly skips nested records; their events already appear in the
	// enclosing root.
	RootsOnly bool
}

// Sink writes a header line followed by the rendered record.
// Safe for concurrent use by multiple goroutines.
type Sink struct {
	w       io.Writer
	ok      *color.Color
	failed  *color.Color
	options Options
	mu      sync.Mutex
}

// New creates a console sink.
func New(opts Options) *Sink {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	s := &Sink{
		w:       w,
		ok:      color.New(color.FgGreen, color.Bold),
		failed:  color.New(color.FgRed, color.Bold),
		options: opts,
	}
	if opts.Color {
		s.ok.EnableColor()
		s.failed.EnableColor()
	} else {
		s.ok.DisableColor()
		s.failed.DisableColor()
	}
	return s
}

// Finalize prints r. It has the scopez.Finalizer signature.
func (s *Sink) Finalize(r *scopez.Record) {
	if s.options.RootsOnly && !r.IsRoot() {
		return
	}
	failed := r.HasFailure()
	if s.options.OnlyFailures && !failed {
		return
	}

	header, status := s.ok, "ok"
	if failed {
		header, status = s.failed, "FAILED"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	header.Fprintf(s.w, "==== trace %s [%s] %d events in %s ====\n", r.ID(), status, r.Len(), r.Duration())
	if body := r.Render(); body != "" {
		fmt.Fprintln(s.w, body)
	}
}
