package errs

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// maxStackDepth bounds the number of frames captured per error.
const maxStackDepth = 32

// StackFrame describes a single entry in a captured call stack.
type StackFrame struct {
	File       string
	LineNumber int
	Function   string
	Package    string
}

// Format implements fmt.Formatter so a StackFrame prints like a
// runtime/debug.Stack() entry.
func (sf StackFrame) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		_, _ = io.WriteString(s, fmt.Sprintf("%s:%d\n\t%s\n", sf.File, sf.LineNumber, sf.Function))
	}
}

// getStack captures the caller's stack, skipping `skip` additional frames
// on top of this function itself.
func getStack(skip int) []StackFrame {
	pc := make([]uintptr, maxStackDepth)
	n := runtime.Callers(2+skip, pc)
	cf := runtime.CallersFrames(pc[:n])

	frames := make([]StackFrame, 0, n)
	for frame, more := cf.Next(); more; frame, more = cf.Next() {
		pkg, fn := packageAndName(frame.Function)
		frames = append(frames, StackFrame{
			File:       frame.File,
			LineNumber: frame.Line,
			Function:   fn,
			Package:    pkg,
		})
	}
	return frames
}

// packageAndName splits a fully qualified runtime function name into its
// package path and bare function name.
func packageAndName(fn string) (pkg string, name string) {
	name = fn
	if lastSlash := strings.LastIndex(name, "/"); lastSlash >= 0 {
		pkg += name[:lastSlash] + "/"
		name = name[lastSlash+1:]
	}
	if period := strings.Index(name, "."); period >= 0 {
		pkg += name[:period]
		name = name[period+1:]
	}
	return pkg, strings.ReplaceAll(name, "·", ".")
}
