package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by sinks and emitters used after Close.
var ErrClosed = errors.New("logging: sink closed")

// Sink is one output destination with its own severity filter and rendering
// rule. Write must append the rendered bytes before returning and must be
// safe for concurrent use.
type Sink interface {
	Name() string
	MinLevel() Level
	Render(Record) ([]byte, error)
	Write([]byte) error
	Close() error
}

// streamSink serializes writes to one underlying writer.
type streamSink struct {
	name   string
	level  Level
	path   string
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	closed bool
}

func (s *streamSink) Name() string { return s.name }

func (s *streamSink) MinLevel() Level { return s.level }

// Path returns the file backing the sink, or "" for console sinks.
func (s *streamSink) Path() string { return s.path }

func (s *streamSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.w.Write(p)
	return err
}

func (s *streamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// SinkSet is the ordered, fixed set of sinks owned by one Emitter.
type SinkSet []Sink

// Close releases every sink, joining any errors.
func (s SinkSet) Close() error {
	var errs []error
	for _, sink := range s {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// SinkOptions describes the standard console + plain-text + JSON-lines set.
type SinkOptions struct {
	Dir            string
	ConsoleLevel   string
	FileLevel      string
	JSONLevel      string
	Console        io.Writer
	DisableConsole bool
	// Date selects the day used in file names; zero means today.
	Date time.Time
}

// LogFilePaths returns the plain-text and JSON-lines paths used for name on
// the given day.
func LogFilePaths(dir, name string, day time.Time) (string, string) {
	base := fmt.Sprintf("%s-%s", sanitizeName(name), day.In(time.Local).Format("2006-01-02"))
	return filepath.Join(dir, base+".log"), filepath.Join(dir, base+".json")
}

// NewSinkSet opens the standard sinks for a logger name. Files are opened
// append-only; the directory is created when missing.
func NewSinkSet(name string, opts SinkOptions) (SinkSet, error) {
	day := opts.Date
	if day.IsZero() {
		day = time.Now()
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = "logs"
	}
	textPath, jsonPath := LogFilePaths(dir, name, day)

	var sinks SinkSet
	if !opts.DisableConsole {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		sinks = append(sinks, NewConsoleSink(console, parseLevelOr(opts.ConsoleLevel, LevelInfo)))
	}

	textSink, err := NewTextFileSink(textPath, parseLevelOr(opts.FileLevel, LevelDebug))
	if err != nil {
		_ = sinks.Close()
		return nil, err
	}
	sinks = append(sinks, textSink)

	jsonSink, err := NewJSONSink(jsonPath, parseLevelOr(opts.JSONLevel, LevelInfo))
	if err != nil {
		_ = sinks.Close()
		return nil, err
	}
	sinks = append(sinks, jsonSink)
	return sinks, nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "workflow"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
}
