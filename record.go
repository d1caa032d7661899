package scopez

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
)

// tree is shared by a root record and every record nested beneath it.
// Holding mu while bubbling keeps each append atomic across the whole chain,
// so concurrent appends land in the same relative order in every ancestor.
type tree struct {
	mu sync.Mutex
}

// Record is the ordered trace of one scope.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order groups immutable identity before guarded state
type Record struct {
	id       string
	parent   *Record
	tree     *tree
	registry *Registry
	depth    int
	opened   time.Time

	// Guarded by tree.mu.
	events     []Event
	closedAt   time.Time
	hasFailure bool
	closed     bool
}

func newRecord(registry *Registry, parent *Record, now time.Time) *Record {
	r := &Record{
		id:       xid.New().String(),
		parent:   parent,
		registry: registry,
		opened:   now,
		events:   make([]Event, 0, 8),
	}
	if parent != nil {
		r.tree = parent.tree
		r.depth = parent.depth + 1
	} else {
		r.tree = &tree{}
	}
	return r
}

// append adds e to r and every ancestor of r that is still open.
// Closed records are skipped; their content is final. Reports whether any
// record received the event.
func (r *Record) append(e Event) bool {
	failed := e.Failure != nil
	appended := false

	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	for rec := r; rec != nil; rec = rec.parent {
		if rec.closed {
			continue
		}
		rec.events = append(rec.events, e)
		if failed {
			rec.hasFailure = true
		}
		appended = true
	}
	return appended
}

// active returns the innermost open record in the chain starting at r, or
// nil when every record in the chain has closed.
func (r *Record) active() *Record {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	for rec := r; rec != nil; rec = rec.parent {
		if !rec.closed {
			return rec
		}
	}
	return nil
}

// finish marks the record closed. Only the first call has an effect.
func (r *Record) finish(now time.Time) bool {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	if r.closed {
		return false
	}
	r.closed = true
	r.closedAt = now
	return true
}

// ID returns the unique identifier of the record.
func (r *Record) ID() string {
	return r.id
}

// Depth returns the nesting level of the record; roots are at depth 0.
func (r *Record) Depth() int {
	return r.depth
}

// IsRoot reports whether the record was opened with no enclosing scope.
func (r *Record) IsRoot() bool {
	return r.parent == nil
}

// ParentID returns the identifier of the enclosing record, or "" for a root.
func (r *Record) ParentID() string {
	if r.parent == nil {
		return ""
	}
	return r.parent.id
}

// Opened returns the time the scope was opened.
func (r *Record) Opened() time.Time {
	return r.opened
}

// Closed reports whether the scope has closed and the record is final.
func (r *Record) Closed() bool {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()
	return r.closed
}

// Duration returns how long the scope was open. Zero while still open.
func (r *Record) Duration() time.Duration {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	if !r.closed {
		return 0
	}
	return r.closedAt.Sub(r.opened)
}

// HasFailure reports whether this record, or any record nested in it,
// received an event carrying a failure.
func (r *Record) HasFailure() bool {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()
	return r.hasFailure
}

// Len returns the number of events in the record.
func (r *Record) Len() int {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()
	return len(r.events)
}

// Events returns a copy of the events in insertion order.
func (r *Record) Events() []Event {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

// LastFailure returns the most recent failure-bearing event.
func (r *Record) LastFailure() (Event, bool) {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Failure != nil {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// Render returns every event, one per line, in insertion order.
func (r *Record) Render() string {
	events := r.Events()
	if len(events) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, e := range events {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}

// String is Render.
func (r *Record) String() string {
	return r.Render()
}
