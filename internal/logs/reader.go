package logs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valyala/fastjson"

	"runwatch/internal/logging"
)

// Entry is one decoded JSON-lines record.
type Entry struct {
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	Level     string         `json:"level" yaml:"level"`
	Logger    string         `json:"logger" yaml:"logger"`
	Message   string         `json:"message" yaml:"message"`
	Module    string         `json:"module,omitempty" yaml:"module,omitempty"`
	Function  string         `json:"function,omitempty" yaml:"function,omitempty"`
	Line      int            `json:"line,omitempty" yaml:"line,omitempty"`
	SessionID string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Context   map[string]any `json:"context" yaml:"context"`
}

// Filter narrows ReadJSON results. Zero values match everything.
type Filter struct {
	MinLevel string
	// Contains matches case-insensitively against the message and the raw
	// context text.
	Contains string
	// Limit keeps only the last N matching entries.
	Limit int
}

// Result holds matching entries in file order plus the count of lines that
// could not be decoded.
type Result struct {
	Entries []Entry
	Skipped int
}

var parsers fastjson.ParserPool

// ReadJSON decodes the JSON-lines log at path. Malformed lines are skipped
// and counted rather than failing the read.
func ReadJSON(path string, filter Filter) (Result, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasSuffix(path, logging.CompressedExt) {
		rc, err = logging.DecompressLog(path)
	} else {
		rc, err = os.Open(path)
	}
	if err != nil {
		return Result{}, fmt.Errorf("open json log: %w", err)
	}
	defer rc.Close()
	return decode(rc, filter)
}

func decode(r io.Reader, filter Filter) (Result, error) {
	minLevel := logging.LevelDebug
	if strings.TrimSpace(filter.MinLevel) != "" {
		minLevel = logging.ParseLevel(filter.MinLevel)
	}
	needle := strings.ToLower(strings.TrimSpace(filter.Contains))

	p := parsers.Get()
	defer parsers.Put(p)

	var result Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		v, err := p.ParseBytes(line)
		if err != nil || v.Type() != fastjson.TypeObject {
			result.Skipped++
			continue
		}
		entry := entryFromValue(v)
		if logging.ParseLevel(entry.Level) < minLevel {
			continue
		}
		if needle != "" && !matches(entry, v, needle) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		if filter.Limit > 0 && len(result.Entries) > filter.Limit {
			result.Entries = result.Entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return result, fmt.Errorf("read json log: line exceeds buffer: %w", err)
		}
		return result, fmt.Errorf("read json log: %w", err)
	}
	return result, nil
}

func entryFromValue(v *fastjson.Value) Entry {
	entry := Entry{
		Timestamp: string(v.GetStringBytes("timestamp")),
		Level:     string(v.GetStringBytes("level")),
		Logger:    string(v.GetStringBytes("logger")),
		Message:   string(v.GetStringBytes("message")),
		Module:    string(v.GetStringBytes("module")),
		Function:  string(v.GetStringBytes("function")),
		Line:      v.GetInt("line"),
		SessionID: string(v.GetStringBytes("session_id")),
		Context:   map[string]any{},
	}
	if ctx := v.GetObject("context"); ctx != nil {
		ctx.Visit(func(key []byte, item *fastjson.Value) {
			entry.Context[string(key)] = toAny(item)
		})
	}
	return entry
}

func matches(entry Entry, v *fastjson.Value, needle string) bool {
	if strings.Contains(strings.ToLower(entry.Message), needle) {
		return true
	}
	if ctx := v.Get("context"); ctx != nil {
		return strings.Contains(strings.ToLower(ctx.String()), needle)
	}
	return false
}

// toAny copies a fastjson value out of the parser's arena.
func toAny(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeArray:
		items := v.GetArray()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, toAny(item))
		}
		return out
	case fastjson.TypeObject:
		out := map[string]any{}
		v.GetObject().Visit(func(key []byte, item *fastjson.Value) {
			out[string(key)] = toAny(item)
		})
		return out
	default:
		return v.String()
	}
}
