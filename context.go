package scopez

import "context"

// recordKeyType is a private type for context keys to avoid collisions.
type recordKeyType string

const (
	recordKey recordKeyType = "scopez"
)

// withRecord installs rec as the ambient record of the returned context.
func withRecord(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, recordKey, rec)
}

// recordFrom returns the record stored in ctx, open or not.
func recordFrom(ctx context.Context) *Record {
	if ctx == nil {
		return nil
	}
	if rec, ok := ctx.Value(recordKey).(*Record); ok {
		return rec
	}
	return nil
}

// FromContext returns the ambient record: the innermost record carried by ctx
// that is still open. A context derived inside a scope that has since closed
// resolves to the enclosing scope's record.
func FromContext(ctx context.Context) (*Record, bool) {
	rec := recordFrom(ctx)
	if rec == nil {
		return nil, false
	}
	if rec = rec.active(); rec == nil {
		return nil, false
	}
	return rec, true
}

// Detach returns the id of the ambient record, or "" when there is none.
// The id can cross a boundary that does not carry the context, such as a job
// queue, and be rejoined with Attach.
func Detach(ctx context.Context) string {
	if rec, ok := FromContext(ctx); ok {
		return rec.ID()
	}
	return ""
}

// Attach returns a context whose ambient record is the open record with the
// given id. If no scope with that id is open, ctx is returned unchanged.
// The attached context logs into the record but does not own its scope.
func (r *Registry) Attach(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	rec, ok := r.Lookup(id)
	if !ok {
		return ctx
	}
	return withRecord(ctx, rec)
}

// Attach rejoins a record of the default registry by id.
func Attach(ctx context.Context, id string) context.Context {
	return defaultRegistry.Attach(ctx, id)
}
