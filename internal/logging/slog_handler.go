package logging

import (
	"context"
	"log/slog"
)

// Slog exposes the Emitter as a *slog.Logger for libraries that only speak
// log/slog. Records keep the Emitter's floor, sinks and failure accounting.
func (e *Emitter) Slog() *slog.Logger {
	return slog.New(&emitterHandler{emitter: e})
}

type emitterHandler struct {
	emitter *Emitter
	attrs   []slog.Attr
	groups  []string
}

func (h *emitterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.emitter.Enabled(levelFromSlog(level))
}

func (h *emitterHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := make([]Field, 0, len(h.attrs)+record.NumAttrs())
	fields = append(fields, h.attrs...)
	var own []Field
	record.Attrs(func(a slog.Attr) bool {
		own = append(own, a)
		return true
	})
	fields = append(fields, nestGroups(h.groups, normalizeFields(own))...)
	h.emitter.emit(ctx, levelFromSlog(record.Level), record.PC, record.Message, dedupeFields(fields))
	return nil
}

func (h *emitterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := &emitterHandler{emitter: h.emitter, groups: h.groups}
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), nestGroups(h.groups, normalizeFields(attrs))...)
	return next
}

func (h *emitterHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := &emitterHandler{emitter: h.emitter, attrs: h.attrs}
	next.groups = append(append([]string(nil), h.groups...), name)
	return next
}

func nestGroups(groups []string, fields []Field) []Field {
	if len(fields) == 0 {
		return nil
	}
	for i := len(groups) - 1; i >= 0; i-- {
		fields = []Field{Group(groups[i], fields...)}
	}
	return fields
}
