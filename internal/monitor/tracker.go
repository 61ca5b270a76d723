package monitor

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"runwatch/internal/logging"
)

// DefaultCriticalKinds are the error kinds that raise a second CRITICAL record.
var DefaultCriticalKinds = []string{
	"ollama_service_down",
	"model_download_failed",
	"service unreachable",
	"dependency download failed",
}

// Tracker records classified errors. It never changes control flow.
type Tracker struct {
	emitter  *logging.Emitter
	critical map[string]struct{}

	mu     sync.Mutex
	counts map[string]int
}

// NewTracker builds a tracker over e. A nil kinds slice uses
// DefaultCriticalKinds; an empty non-nil slice disables escalation.
func NewTracker(e *logging.Emitter, kinds []string) *Tracker {
	if kinds == nil {
		kinds = DefaultCriticalKinds
	}
	critical := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		kind = strings.TrimSpace(kind)
		if kind != "" {
			critical[kind] = struct{}{}
		}
	}
	return &Tracker{emitter: e, critical: critical, counts: make(map[string]int)}
}

// IsCritical reports whether kind is on the allow-list.
func (t *Tracker) IsCritical(kind string) bool {
	if t == nil {
		return false
	}
	_, ok := t.critical[kind]
	return ok
}

// Track emits one error record for kind and, for critical kinds, a second
// CRITICAL record.
func (t *Tracker) Track(ctx context.Context, kind, message string, details map[string]any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.counts[kind]++
	t.mu.Unlock()

	var run any
	if id, ok := logging.RunFromContext(ctx); ok {
		run = id
	}
	if details == nil {
		details = map[string]any{}
	}
	t.emitter.Log(ctx, logging.LevelError, "Error: "+kind,
		"error_kind", kind,
		"error_message", message,
		logging.FieldWorkflowRun, run,
		"context", details,
	)
	if t.IsCritical(kind) {
		t.emitter.Log(ctx, logging.LevelError, fmt.Sprintf("CRITICAL: %s - %s", kind, message))
	}
}

// TrackErr is Track with err's text as the message.
func (t *Tracker) TrackErr(ctx context.Context, kind string, err error, details map[string]any) {
	message := "<nil>"
	if err != nil {
		message = err.Error()
	}
	t.Track(ctx, kind, message, details)
}

// Counts returns how many times each kind was tracked.
func (t *Tracker) Counts() map[string]int {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.counts)
}
