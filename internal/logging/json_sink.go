package logging

import (
	"encoding/json"
	"fmt"
)

// JSONLine is the wire shape of one JSON-lines record.
type JSONLine struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Logger    string         `json:"logger"`
	Message   string         `json:"message"`
	Module    string         `json:"module"`
	Function  string         `json:"function"`
	Line      int            `json:"line"`
	SessionID string         `json:"session_id,omitempty"`
	Context   map[string]any `json:"context"`
}

// JSONSink appends one JSON object per record to a file.
type JSONSink struct {
	streamSink
}

// NewJSONSink opens path for appending.
func NewJSONSink(path string, level Level) (*JSONSink, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &JSONSink{streamSink: streamSink{name: "json", level: level, path: path, w: file, closer: file}}, nil
}

func (s *JSONSink) Render(r Record) ([]byte, error) {
	line := JSONLine{
		Timestamp: formatISO(r.Time),
		Level:     r.Level.String(),
		Logger:    r.Logger,
		Message:   r.Message,
		Module:    r.Source.Module(),
		Function:  r.Source.ShortFunction(),
		Line:      r.Source.Line,
		SessionID: r.SessionID,
		Context:   fieldsToMap(r.Fields),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("encode json record: %w", err)
	}
	return append(data, '\n'), nil
}
