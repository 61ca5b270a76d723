package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"runwatch/internal/logging"
)

// DefaultWorkflowName names runs when Options leaves it empty.
const DefaultWorkflowName = "ollama-workflow"

// MetricsExporter writes accumulated metrics next to the summary.
type MetricsExporter interface {
	WriteTextfile(path string) error
}

// HistoryRecorder indexes persisted summaries.
type HistoryRecorder interface {
	Record(ctx context.Context, s Summary, path string) error
}

// Options configures a Monitor. Only Emitter is required in practice; every
// other collaborator has a working default.
type Options struct {
	WorkflowName  string
	Emitter       *logging.Emitter
	Table         *Table
	Aggregator    *Aggregator
	CriticalKinds []string
	// Metrics, when set, receives a textfile export beside each summary at
	// MetricsTextfile (relative paths resolve against the result directory).
	Metrics         MetricsExporter
	MetricsTextfile string
	History         HistoryRecorder
	Now             func() time.Time
}

// Monitor composes the emitter, threshold table, health aggregator and
// error tracker for one workflow run.
type Monitor struct {
	name       string
	emitter    *logging.Emitter
	table      Table
	aggregator *Aggregator
	tracker    *Tracker
	metrics    MetricsExporter
	textfile   string
	history    HistoryRecorder
	now        func() time.Time
	start      time.Time

	mu     sync.RWMutex
	runID  *string
	commit *string
}

// New builds a Monitor and records the run start time.
func New(opts Options) *Monitor {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = logging.NewNop()
	}
	table := DefaultTable()
	if opts.Table != nil {
		table = *opts.Table
	}
	aggregator := opts.Aggregator
	if aggregator == nil {
		aggregator = NewAggregator(DefaultProbeTimeout)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	name := opts.WorkflowName
	if name == "" {
		name = DefaultWorkflowName
	}
	textfile := opts.MetricsTextfile
	if textfile == "" {
		textfile = "metrics.prom"
	}
	return &Monitor{
		name:       name,
		emitter:    emitter,
		table:      table,
		aggregator: aggregator,
		tracker:    NewTracker(emitter, opts.CriticalKinds),
		metrics:    opts.Metrics,
		textfile:   textfile,
		history:    opts.History,
		now:        now,
		start:      now(),
	}
}

func (m *Monitor) Emitter() *logging.Emitter { return m.emitter }

func (m *Monitor) Table() Table { return m.table }

func (m *Monitor) Tracker() *Tracker { return m.tracker }

func (m *Monitor) WorkflowName() string { return m.name }

// StartTime returns when the Monitor was built.
func (m *Monitor) StartTime() time.Time { return m.start }

// Start records the run identity and returns a context whose records carry
// it.
func (m *Monitor) Start(ctx context.Context, runID, commitSHA string) context.Context {
	m.mu.Lock()
	m.runID = optional(runID)
	m.commit = optional(commitSHA)
	m.mu.Unlock()

	ctx = logging.WithRun(ctx, runID, commitSHA)
	m.emitter.Log(ctx, logging.LevelInfo, "Starting workflow monitoring",
		"workflow_name", m.name,
		"start_time", m.start,
	)
	return ctx
}

// RecordOperation emits duration and status metrics for op, classifies the
// duration and warns when it exceeds the operation's budget.
func (m *Monitor) RecordOperation(ctx context.Context, op string, duration time.Duration, success bool) Decision {
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	status := 0.0
	if success {
		status = 1
	}
	m.emitter.Metric(ctx, op+"_duration", round(seconds, 2), "s", nil)
	m.emitter.Metric(ctx, op+"_status", status, "", nil)

	decision := m.table.Classify(op, seconds)
	if !decision.WithinBudget {
		m.emitter.Log(ctx, logging.LevelWarning, "Performance threshold exceeded: "+op,
			logging.FieldOperation, op,
			"duration", round(seconds, 2),
			"threshold", decision.Threshold,
		)
	}
	return decision
}

// Operation runs work inside a span and records its outcome. The work's
// error is returned unchanged.
func (m *Monitor) Operation(ctx context.Context, op string, work func(context.Context) error) error {
	started := m.now()
	err := m.emitter.Time(ctx, op, work)
	m.RecordOperation(ctx, op, m.now().Sub(started), err == nil)
	return err
}

// HealthCheck takes one snapshot and logs it.
func (m *Monitor) HealthCheck(ctx context.Context) Snapshot {
	snap := m.aggregator.Check(ctx)
	m.mu.RLock()
	snap.RunID = m.runID
	m.mu.RUnlock()

	m.emitter.Log(ctx, logging.LevelInfo, "Health check completed",
		"timestamp", snap.Timestamp,
		logging.FieldWorkflowRun, derefOrNil(snap.RunID),
		"checks", checksForLog(snap),
	)
	return snap
}

// TrackError forwards to the run's Tracker. Records carry the run identity
// recorded by Start even when ctx does not.
func (m *Monitor) TrackError(ctx context.Context, kind, message string, details map[string]any) {
	m.tracker.Track(m.runContext(ctx), kind, message, details)
}

// runContext tags ctx with the started run unless it already names one.
func (m *Monitor) runContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := logging.RunFromContext(ctx); ok {
		return ctx
	}
	m.mu.RLock()
	runID, commit := derefOrEmpty(m.runID), derefOrEmpty(m.commit)
	m.mu.RUnlock()
	return logging.WithRun(ctx, runID, commit)
}

// GenerateSummary builds the end-of-run summary, writes it into resultDir
// and returns it. Each call takes a fresh health snapshot.
func (m *Monitor) GenerateSummary(ctx context.Context, resultDir string) (Summary, error) {
	// Wall-clock readings so duration_seconds matches the persisted
	// start_time and end_time.
	end := m.now().Round(0)
	elapsed := end.Sub(m.start.Round(0))
	if elapsed < 0 {
		elapsed = 0
	}
	health := m.HealthCheck(ctx)

	m.mu.RLock()
	summary := Summary{
		WorkflowName:    m.name,
		WorkflowRun:     m.runID,
		CommitSHA:       m.commit,
		StartTime:       m.start,
		EndTime:         end,
		DurationSeconds: round(elapsed.Seconds(), 2),
		Health:          health,
	}
	m.mu.RUnlock()
	if counts := m.tracker.Counts(); len(counts) > 0 {
		summary.ErrorCounts = counts
	}

	path := SummaryPath(resultDir)
	if err := WriteSummary(ctx, path, summary); err != nil {
		m.emitter.Log(ctx, logging.LevelError, "Summary write failed", "file", path, logging.Error(err))
		return summary, err
	}
	m.emitter.Log(ctx, logging.LevelInfo, "Summary generated", "file", path)

	if m.metrics != nil {
		textfile := m.textfile
		if !filepath.IsAbs(textfile) {
			textfile = filepath.Join(resultDir, textfile)
		}
		if err := m.metrics.WriteTextfile(textfile); err != nil {
			m.emitter.Log(ctx, logging.LevelWarning, "Metrics export failed", "file", textfile, logging.Error(err))
		}
	}
	if m.history != nil {
		if err := m.history.Record(ctx, summary, path); err != nil {
			m.emitter.Log(ctx, logging.LevelWarning, "History record failed", logging.Error(err))
		}
	}
	return summary, nil
}

// Close releases the emitter's sinks.
func (m *Monitor) Close() error {
	if err := m.emitter.Close(); err != nil {
		return fmt.Errorf("close emitter: %w", err)
	}
	return nil
}

func checksForLog(snap Snapshot) map[string]map[string]any {
	out := make(map[string]map[string]any, len(snap.Checks))
	for name, check := range snap.Checks {
		out[name] = check.asMap()
	}
	return out
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefOrNil(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
