package scopez

import (
	"context"
	"fmt"
)

// Log appends message to the ambient record of ctx and to every enclosing
// record. Without an open scope it does nothing.
func Log(ctx context.Context, message string) {
	logAt(ctx, 1, message, nil)
}

// Logf is Log with fmt.Sprintf formatting. Arguments are not formatted when
// there is no open scope.
func Logf(ctx context.Context, format string, args ...interface{}) {
	if _, ok := FromContext(ctx); !ok {
		return
	}
	logAt(ctx, 1, fmt.Sprintf(format, args...), nil)
}

// LogError appends a failure-bearing event. The rendered event carries
// message followed by the error text, every wrapped cause and the stack of the
// logging goroutine. The ambient record and all its ancestors are marked as
// failed. An empty message falls back to the error text; a nil err logs a
// plain event.
func LogError(ctx context.Context, err error, message string) {
	logAt(ctx, 1, message, err)
}

// logAt builds and appends an event. skip is the number of frames between
// logAt's caller and the frame reported as the event's source.
func logAt(ctx context.Context, skip int, message string, err error) {
	rec, ok := FromContext(ctx)
	if !ok {
		return
	}

	var f *Failure
	if err != nil {
		f = newFailure(err, skip+1)
	}
	rec.log(callerAt(skip+1), message, f)
}

// log stamps an event with the clock of the registry that opened r and
// appends it.
func (r *Record) log(c caller, message string, f *Failure) {
	e := Event{
		Time:    r.registry.now(),
		Worker:  goroutineID(),
		File:    c.file,
		Line:    c.line,
		Class:   c.class,
		Member:  c.member,
		Message: message,
		Failure: f,
	}
	if f != nil && e.Message == "" {
		e.Message = f.Message
	}

	r.append(e)
}
