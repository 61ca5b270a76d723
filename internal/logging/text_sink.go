package logging

import (
	"bytes"
	"strconv"
)

// TextFileSink appends detailed plain lines to a file:
//
//	2026-10-15 09:12:01,123 - INFO - runDownload:42 - Starting: model_download
type TextFileSink struct {
	streamSink
}

// NewTextFileSink opens path for appending.
func NewTextFileSink(path string, level Level) (*TextFileSink, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &TextFileSink{streamSink: streamSink{name: "file", level: level, path: path, w: file, closer: file}}, nil
}

func (s *TextFileSink) Render(r Record) ([]byte, error) {
	fn := r.Source.ShortFunction()
	if fn == "" {
		fn = "?"
	}
	var buf bytes.Buffer
	buf.Grow(80 + len(r.Message))
	buf.WriteString(formatTimestamp(r.Time))
	buf.WriteString(" - ")
	buf.WriteString(r.Level.String())
	buf.WriteString(" - ")
	buf.WriteString(fn)
	buf.WriteByte(':')
	buf.WriteString(strconv.Itoa(r.Source.Line))
	buf.WriteString(" - ")
	buf.WriteString(messageOrPlaceholder(r.Message))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
