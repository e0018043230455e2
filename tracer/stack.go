package tracer

import (
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// StackFrame is one entry of a captured call stack.
type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Code     string `json:"code"`
}

const maxStackDepth = 64

// pkgPrefix matches the function names of this package's own frames.
var pkgPrefix = reflect.TypeFor[Recorder]().PkgPath() + "."

// CaptureStack returns the current call stack, outermost frame first.
// skip drops that many of the innermost frames; 0 keeps the caller of
// CaptureStack as the last frame.
func CaptureStack(skip int) []StackFrame {
	return callers(skip+1, nil)
}

// userStack is the stack as seen by the code that called an instrumented
// method: frames of this package, reflect and the runtime are dropped.
func userStack() []StackFrame {
	return callers(1, isUserFrame)
}

func isUserFrame(function string) bool {
	return !strings.HasPrefix(function, pkgPrefix) &&
		!strings.HasPrefix(function, "reflect.") &&
		!strings.HasPrefix(function, "runtime.")
}

func callers(skip int, keep func(function string) bool) []StackFrame {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers itself and callers are frames 0 and 1.
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []StackFrame
	for {
		f, more := frames.Next()
		if f.Function != "" && (keep == nil || keep(f.Function)) {
			out = append(out, StackFrame{
				File:     f.File,
				Line:     f.Line,
				Function: shortFuncName(f.Function),
				Code:     sourceLine(f.File, f.Line),
			})
		}
		if !more {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// shortFuncName strips the import path, keeping the package name:
// "example.com/x/demo.(*Dict).Insert" becomes "demo.(*Dict).Insert".
func shortFuncName(function string) string {
	if i := strings.LastIndex(function, "/"); i >= 0 {
		return function[i+1:]
	}
	return function
}

var sourceCache sync.Map // file -> []string

// sourceLine returns the trimmed text of line in file, or "" if unavailable.
func sourceLine(file string, line int) string {
	cached, ok := sourceCache.Load(file)
	if !ok {
		var lines []string
		if data, err := os.ReadFile(file); err == nil {
			lines = strings.Split(string(data), "\n")
		}
		cached, _ = sourceCache.LoadOrStore(file, lines)
	}
	lines := cached.([]string)
	if line < 1 || line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}
