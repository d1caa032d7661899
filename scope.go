package scopez

import (
	"context"
	"fmt"
)

// Scope owns one record from Begin until Close.
// Close must run on every exit path, normally through defer.
type Scope struct {
	record    *Record
	registry  *Registry
	finalizer Finalizer
	ctx       context.Context
}

// Begin opens a scope whose record nests under the ambient record of ctx, if
// any, and returns a context carrying the new record. Goroutines started with
// the returned context log into this scope. Never fails.
func (r *Registry) Begin(ctx context.Context, finalizer Finalizer) (context.Context, *Scope) {
	// Handle nil context by creating a new one.
	if ctx == nil {
		ctx = context.Background()
	}

	parent, _ := FromContext(ctx)
	rec := newRecord(r, parent, r.now())
	r.remember(rec)

	scope := &Scope{
		record:    rec,
		registry:  r,
		finalizer: finalizer,
	}
	scope.ctx = withRecord(ctx, rec)

	return scope.ctx, scope
}

// Begin opens a scope on the default registry.
func Begin(ctx context.Context, finalizer Finalizer) (context.Context, *Scope) {
	return defaultRegistry.Begin(ctx, finalizer)
}

// Close finalizes the scope. The ambient record seen through the scope's
// context reverts to the enclosing record, the record stops accepting events,
// and it is delivered to the scope's finalizer and then to every registered
// listener in registration order.
// Safe to call multiple times - subsequent calls are no-ops.
//
// Scopes opened on one goroutine must close innermost first.
func (s *Scope) Close() {
	if s == nil || !s.record.finish(s.registry.now()) {
		return
	}
	s.registry.forget(s.record)
	s.registry.finalize(s.finalizer, s.record)
}

// Context returns the context carrying this scope's record.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Record returns the scope's record. It keeps growing until Close.
func (s *Scope) Record() *Record {
	return s.record
}

// ID returns the id of the scope's record.
func (s *Scope) ID() string {
	return s.record.ID()
}

// Do runs fn inside a new scope and closes it on every exit path.
// An error returned by fn is logged as a failure and returned. A panic in fn
// is logged as a failure, the scope is closed, and the panic continues.
// Both events name the caller of Do as their source.
func (r *Registry) Do(ctx context.Context, finalizer Finalizer, fn func(ctx context.Context) error) error {
	return r.do(ctx, finalizer, fn, 1)
}

// Do runs fn inside a new scope on the default registry.
func Do(ctx context.Context, finalizer Finalizer, fn func(ctx context.Context) error) error {
	return defaultRegistry.do(ctx, finalizer, fn, 1)
}

// do is Do with skip counting the exported frames between do and the caller
// reported as the source of the failure events.
func (r *Registry) do(ctx context.Context, finalizer Finalizer, fn func(ctx context.Context) error, skip int) (err error) {
	site := callerAt(skip + 1)
	ctx, scope := r.Begin(ctx, finalizer)
	defer func() {
		if p := recover(); p != nil {
			// The stack starts at the panic machinery, followed by the panicking frame.
			scope.record.log(site, "unit of work panicked", newFailure(panicError(p), 1))
			scope.Close()
			panic(p)
		}
		scope.Close()
	}()

	if err = fn(ctx); err != nil {
		scope.record.log(site, "unit of work failed", newFailure(err, skip+1))
	}
	return err
}

func panicError(p interface{}) error {
	if err, ok := p.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", p)
}
