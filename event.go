package scopez

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the timestamp layout used when rendering events.
const TimeFormat = "2006/01/02 15:04:05.000"

// maxStackDepth bounds the frames captured for a failure.
const maxStackDepth = 32

// maxCauses bounds the wrap chain walk; a cyclic Unwrap would never end.
const maxCauses = 64

// Event is one logged fact. Events are values and are never modified after
// they are appended to a record.
//
//nolint:govet // Field order follows the rendered line
type Event struct {
	Time    time.Time `json:"time"`
	Worker  uint64    `json:"worker"`
	File    string    `json:"file"`
	Line    int       `json:"line"`
	Class   string    `json:"class,omitempty"`
	Member  string    `json:"member"`
	Message string    `json:"message"`
	Failure *Failure  `json:"failure,omitempty"`
}

// Failure is the error detail attached to an event.
type Failure struct {
	Err     error    `json:"-"`
	Message string   `json:"message"`
	Causes  []string `json:"causes,omitempty"`
	Stack   string   `json:"stack,omitempty"`
}

// HasFailure reports whether the event carries a failure.
func (e Event) HasFailure() bool {
	return e.Failure != nil
}

// String renders the event as a single line, followed by the failure block
// when one is attached.
func (e Event) String() string {
	var sb strings.Builder
	sb.WriteString(e.Time.Format(TimeFormat))
	fmt.Fprintf(&sb, " [%03d] %s(%d) - ", e.Worker, e.File, e.Line)
	if e.Class != "" {
		sb.WriteString(e.Class)
		sb.WriteByte('.')
	}
	sb.WriteString(e.Member)
	sb.WriteString("() - ")
	sb.WriteString(e.Message)

	if e.Failure != nil {
		sb.WriteByte('\n')
		sb.WriteString(e.Failure.String())
	}
	return sb.String()
}

// String renders the error text, each wrapped cause and the captured stack.
func (f *Failure) String() string {
	var sb strings.Builder
	sb.WriteString(f.Message)
	for _, cause := range f.Causes {
		sb.WriteString("\ncaused by: ")
		sb.WriteString(cause)
	}
	if f.Stack != "" {
		sb.WriteByte('\n')
		sb.WriteString(f.Stack)
	}
	return sb.String()
}

// Error returns the logged error's text, so a Failure can travel as an error.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the logged error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure captures err, its causes and the current stack.
// skip counts frames above newFailure that belong to this package.
func newFailure(err error, skip int) *Failure {
	return &Failure{
		Err:     err,
		Message: errorText(err),
		Causes:  causes(err),
		Stack:   stack(skip + 1),
	}
}

// causes walks the wrap chain breadth first. Joined errors contribute every
// branch.
func causes(err error) []string {
	var out []string
	queue := unwrap(err)
	for len(queue) > 0 && len(out) < maxCauses {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		out = append(out, errorText(next))
		queue = append(queue, unwrap(next)...)
	}
	return out
}

func unwrap(err error) (inner []error) {
	defer func() {
		if recover() != nil {
			inner = nil
		}
	}()

	switch x := err.(type) { //nolint:errorlint // Inspecting the wrap shape itself
	case interface{ Unwrap() []error }:
		return x.Unwrap()
	case interface{ Unwrap() error }:
		if next := x.Unwrap(); next != nil {
			return []error{next}
		}
	}
	return nil
}

func stack(skip int) string {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "   at %s (%s:%d)", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return sb.String()
}

// caller describes the function that called into the logging API.
type caller struct {
	file   string
	line   int
	class  string
	member string
}

// callerAt resolves the frame skip levels above its own caller.
func callerAt(skip int) caller {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return caller{file: "???", member: "???"}
	}

	c := caller{file: filepath.Base(file), line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		c.class, c.member = splitFuncName(fn.Name())
	}
	return c
}

// versionLen returns the length of a leading "v<digits>" element followed by
// a dot, or 0.
func versionLen(s string) int {
	if len(s) < 3 || s[0] != 'v' {
		return 0
	}
	i := 1
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 1 || i == len(s) || s[i] != '.' {
		return 0
	}
	return i
}

// splitFuncName turns "example.com/pkg.(*Type).Method" into ("Type", "Method")
// and "example.com/pkg.helper.func1" into ("", "helper.func1").
func splitFuncName(name string) (class, member string) {
	if slash := strings.LastIndexByte(name, '/'); slash >= 0 {
		name = name[slash+1:]
	}
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return "", name
	}
	// Versioned import paths such as gopkg.in/yaml.v3 keep their dot.
	if n := versionLen(name[dot+1:]); n > 0 {
		dot += 1 + n
	}
	rest := name[dot+1:]

	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end > 0 && end+1 < len(rest) {
			class = strings.TrimPrefix(rest[1:end], "*")
			return class, strings.TrimPrefix(rest[end+1:], ".")
		}
	}

	// Value receivers have no parentheses: pkg.Type.Method. Closures inside
	// plain functions look the same, so only an exported first element is
	// treated as a type.
	if first, tail, ok := strings.Cut(rest, "."); ok && isExported(first) && !strings.HasPrefix(tail, "func") {
		return first, tail
	}
	return "", rest
}

func isExported(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the id out of the current goroutine's stack header.
// The runtime exposes no other handle on it.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// errorText guards against Error methods that panic, typically on a typed
// nil pointer stored in an error interface.
func errorText(err error) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = fmt.Sprintf("%T (Error panicked: %v)", err, r)
		}
	}()
	return err.Error()
}
