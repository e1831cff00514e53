// Package errs provides a small chained error type with captured stack
// traces, adapted from go.bryk.io/pkg/errors and trimmed to the subset the
// AMQP core needs: sentinel error kinds compared with errors.Is, and a
// Recover helper that turns a panicking callback into a plain error instead
// of crashing its caller.
package errs

import (
	"fmt"
	"time"
)

// Error wraps a root cause with a captured stack trace and, optionally, a
// previous error in a wrap chain.
type Error struct {
	ts     int64
	err    error
	prev   error
	frames []StackFrame
}

// New returns a root error (no cause) built from e. If e is already an
// *Error it is returned unchanged so repeated wrapping doesn't pile up
// redundant stacks.
func New(e interface{}) error {
	if e == nil {
		return nil
	}
	switch v := e.(type) {
	case *Error:
		return v
	case error:
		return &Error{ts: time.Now().UnixMilli(), err: v, frames: getStack(1)}
	default:
		return &Error{ts: time.Now().UnixMilli(), err: fmt.Errorf("%v", v), frames: getStack(1)}
	}
}

// Errorf returns a new root error formatted like fmt.Errorf, supporting %w.
func Errorf(format string, args ...interface{}) error {
	return &Error{ts: time.Now().UnixMilli(), err: fmt.Errorf(format, args...), frames: getStack(1)}
}

// WithStack wraps err, attaching a stack trace pointing at the caller. It
// returns nil if err is nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	if prev, ok := err.(*Error); ok {
		return &Error{ts: time.Now().UnixMilli(), err: prev.err, prev: prev, frames: getStack(1)}
	}
	return &Error{ts: time.Now().UnixMilli(), err: err, frames: getStack(1)}
}

// Error returns the underlying message.
func (e *Error) Error() string {
	return e.err.Error()
}

// Unwrap returns the previous error in the chain, or the wrapped root cause
// when there is none, so errors.Is/As can traverse it.
func (e *Error) Unwrap() error {
	if e.prev != nil {
		return e.prev
	}
	return e.err
}

// StackTrace returns the frames captured when the error was created.
func (e *Error) StackTrace() []StackFrame {
	return e.frames
}

// Stamp returns the error's creation time as a UNIX millisecond timestamp.
func (e *Error) Stamp() int64 {
	return e.ts
}

// Format implements fmt.Formatter; %+v includes the captured stack.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'v':
		if s.Flag('+') {
			str := e.Error() + "\n"
			for _, fr := range e.frames {
				str += fmt.Sprintf("%v", fr)
			}
			_, _ = fmt.Fprint(s, str)
			return
		}
		_, _ = fmt.Fprint(s, e.Error())
	}
}
