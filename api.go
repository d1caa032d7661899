// Package scopez aggregates the trace lines of one unit of work into a single
// ordered record.
//
// A scope is opened at the start of a request, job or test and carried in a
// context.Context. Anything reachable with that context can log into it
// without holding a handle to the scope. When the scope closes, its record is
// handed to the scope's own finalizer and to every process-wide listener.
//
// Core Components:
//   - Scope: Open/Closed lifecycle of one record, installed in a context.
//   - Record: Ordered events plus a monotonic failure flag.
//   - Event: One immutable logged fact with caller metadata.
//   - Registry: Process-wide finalize listeners, clock and panic hook.
//   - Collector: Buffers finalized records for export.
//
// Basic Usage:
//
//	ctx, scope := scopez.Begin(ctx, func(r *scopez.Record) {
//		fmt.Println(r.Render())
//	})
//	defer scope.Close()
//
//	scopez.Log(ctx, "loading user")
//	if err := load(ctx); err != nil {
//		scopez.LogError(ctx, err, "load failed")
//	}
//
// Nesting:
//
// A scope opened while another is ambient is linked to it. Every event logged
// in the inner scope is also appended to each enclosing record, and a failure
// marks the inner record and all of its ancestors.
//
// Goroutines:
//
// A goroutine started with the context inherits the ambient record at that
// point. Scopes it opens are visible only through the contexts derived from
// it, so sibling goroutines never see each other's scopes. Work handed to a
// goroutine that only receives an identifier can rejoin the record with
// Detach and Attach.
//
// Logging without an open scope, or through a context whose scopes have all
// closed, is a silent no-op.
package scopez

// Finalizer receives a record once its scope has closed.
// The record is no longer mutated and may be read from any goroutine.
type Finalizer func(record *Record)
