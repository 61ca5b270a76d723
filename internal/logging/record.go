package logging

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Record is one structured log entry. Records are never mutated after the
// Emitter builds them; sinks only read.
type Record struct {
	Time      time.Time
	Level     Level
	Logger    string
	Message   string
	Fields    []Field
	Source    Source
	SessionID string
}

// Source is the best-effort origin of a record.
type Source struct {
	Function string
	File     string
	Line     int
}

// Module returns the source file name without directory or extension.
func (s Source) Module() string {
	if s.File == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(s.File), filepath.Ext(s.File))
}

// ShortFunction returns the function name without its package path.
func (s Source) ShortFunction() string {
	name := s.Function
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func sourceFromPC(pc uintptr) Source {
	if pc == 0 {
		return Source{}
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return Source{Function: frame.Function, File: frame.File, Line: frame.Line}
}

// callerPC returns the program counter skip frames above the function that
// calls callerPC (skip=1 is that function's caller).
func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}
