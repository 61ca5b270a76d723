package logging

import (
	"bytes"
	"io"
	"strings"
)

// ConsoleSink renders concise human-readable lines:
//
//	2026-10-15 09:12:01,123 - nightly - INFO - Starting: model_download
//
// Context fields are not shown.
type ConsoleSink struct {
	streamSink
}

// NewConsoleSink writes to w, admitting records at or above level.
func NewConsoleSink(w io.Writer, level Level) *ConsoleSink {
	return &ConsoleSink{streamSink: streamSink{name: "console", level: level, w: w}}
}

func (s *ConsoleSink) Render(r Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 + len(r.Message))
	buf.WriteString(formatTimestamp(r.Time))
	buf.WriteString(" - ")
	buf.WriteString(r.Logger)
	buf.WriteString(" - ")
	buf.WriteString(r.Level.String())
	buf.WriteString(" - ")
	buf.WriteString(messageOrPlaceholder(r.Message))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func messageOrPlaceholder(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return "(no message)"
	}
	return msg
}
