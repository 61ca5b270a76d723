package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"runwatch/internal/logging"
)

type captureSink struct {
	mu      sync.Mutex
	records []logging.Record
}

func (s *captureSink) Name() string            { return "capture" }
func (s *captureSink) MinLevel() logging.Level { return logging.LevelDebug }
func (s *captureSink) Write([]byte) error      { return nil }
func (s *captureSink) Close() error            { return nil }
func (s *captureSink) Render(r logging.Record) ([]byte, error) {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return nil, nil
}

func (s *captureSink) byLevel(level logging.Level) []logging.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []logging.Record
	for _, r := range s.records {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

func (s *captureSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Message)
	}
	return out
}

func newCaptureEmitter() (*logging.Emitter, *captureSink) {
	sink := &captureSink{}
	return logging.NewWithSinks("monitor-test", logging.LevelDebug, sink), sink
}

func fieldMap(r logging.Record) map[string]any {
	return logging.FieldsToMap(r.Fields)
}

type staticChecker bool

func (c staticChecker) CheckConfigured(context.Context) bool { return bool(c) }

type blockingChecker struct{}

func (blockingChecker) CheckConfigured(ctx context.Context) bool {
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	return true
}

type panickingChecker struct{}

func (panickingChecker) CheckConfigured(context.Context) bool { panic("credentials helper crashed") }

func fixedUsage(total, free uint64) func(string) (uint64, uint64, error) {
	return func(string) (uint64, uint64, error) { return total, free, nil }
}

func TestClassifyReferenceCases(t *testing.T) {
	table := NewTable(120, map[string]float64{"model_download": 300})

	got := table.Classify("model_download", 301)
	if got.WithinBudget || got.Threshold != 300 {
		t.Fatalf("model_download 301 = %+v, want over budget at 300", got)
	}
	got = table.Classify("unknown_op", 50)
	if !got.WithinBudget || got.Threshold != 120 {
		t.Fatalf("unknown_op 50 = %+v, want within default 120", got)
	}
	if d := table.Classify("model_download", 300); !d.WithinBudget {
		t.Fatal("duration equal to threshold should be within budget")
	}
}

func TestDefaultTableMatchesReferencePolicy(t *testing.T) {
	table := DefaultTable()
	want := map[string]float64{"ollama_query": 60, "model_download": 300, "test_execution": 30, "s3_upload": 60}
	for op, seconds := range want {
		if got := table.Threshold(op); got != seconds {
			t.Fatalf("Threshold(%q) = %v, want %v", op, got, seconds)
		}
	}
	if table.Default() != 120 {
		t.Fatalf("Default() = %v, want 120", table.Default())
	}
	ops := table.Operations()
	ops["ollama_query"] = 1
	if table.Threshold("ollama_query") != 60 {
		t.Fatal("Operations must return a copy")
	}
}

func TestClassifyMatchesComparison(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		def := rapid.Float64Range(1, 1000).Draw(t, "default")
		known := rapid.Float64Range(1, 1000).Draw(t, "known")
		seconds := rapid.Float64Range(0, 2000).Draw(t, "seconds")
		op := rapid.SampledFrom([]string{"known", "other"}).Draw(t, "op")

		table := NewTable(def, map[string]float64{"known": known})
		want := def
		if op == "known" {
			want = known
		}
		got := table.Classify(op, seconds)
		if got.Threshold != want || got.WithinBudget != (seconds <= want) {
			t.Fatalf("Classify(%q, %v) = %+v, threshold want %v", op, seconds, got, want)
		}
	})
}

func TestRecordOperationWarnsOverBudget(t *testing.T) {
	emitter, sink := newCaptureEmitter()
	m := New(Options{Emitter: emitter})
	ctx := context.Background()

	decision := m.RecordOperation(ctx, "test_execution", 45*time.Second, true)
	if decision.WithinBudget || decision.Threshold != 30 {
		t.Fatalf("decision = %+v", decision)
	}
	msgs := sink.messages()
	want := []string{"METRIC: test_execution_duration=45s", "METRIC: test_execution_status=1", "Performance threshold exceeded: test_execution"}
	if strings.Join(msgs, "|") != strings.Join(want, "|") {
		t.Fatalf("messages = %q, want %q", msgs, want)
	}
	warnings := sink.byLevel(logging.LevelWarning)
	fields := fieldMap(warnings[0])
	if fields["duration"] != 45.0 || fields["threshold"] != 30.0 {
		t.Fatalf("warning fields = %v", fields)
	}

	m.RecordOperation(ctx, "test_execution", time.Second, false)
	if got := len(sink.byLevel(logging.LevelWarning)); got != 1 {
		t.Fatalf("warnings after in-budget run = %d, want 1", got)
	}
}

func TestHealthCheckNeverFailsOnBrokenCollaborator(t *testing.T) {
	for name, checker := range map[string]ConfiguredChecker{
		"timeout": blockingChecker{},
		"panic":   panickingChecker{},
		"false":   staticChecker(false),
	} {
		t.Run(name, func(t *testing.T) {
			agg := NewAggregator(20*time.Millisecond, ReachabilityProbe(CheckAWSConfigured, checker))
			snap := agg.Check(context.Background())
			check := snap.Checks[CheckAWSConfigured]
			if check.Status != StatusDegraded {
				t.Fatalf("status = %s, want degraded", check.Status)
			}
			if check.Values["configured"] != false {
				t.Fatalf("configured = %v, want false", check.Values["configured"])
			}
		})
	}
}

func TestDiskProbeClassifiesHeadroom(t *testing.T) {
	cases := []struct {
		name  string
		usage func(string) (uint64, uint64, error)
		want  Status
		pct   any
	}{
		{"plenty", fixedUsage(1000, 425), StatusHealthy, 42.5},
		{"exactly ten", fixedUsage(1000, 100), StatusWarning, 10.0},
		{"low", fixedUsage(1000, 50), StatusWarning, 5.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := diskProbe("/", 10, tc.usage).Run(context.Background())
			if check.Status != tc.want || check.Values["free_percent"] != tc.pct {
				t.Fatalf("check = %+v, want %s at %v", check, tc.want, tc.pct)
			}
		})
	}

	failing := diskProbe("/missing", 10, func(string) (uint64, uint64, error) {
		return 0, 0, errors.New("statfs /missing: no such file or directory")
	})
	check := failing.Run(context.Background())
	if check.Status != StatusDegraded || !strings.Contains(check.Detail, "no such file") {
		t.Fatalf("failing check = %+v", check)
	}
}

func TestDirectoryProbe(t *testing.T) {
	dir := t.TempDir()
	if c := DirectoryProbe(CheckLogsDirectory, dir).Run(context.Background()); c.Status != StatusHealthy || c.Values["exists"] != true {
		t.Fatalf("existing dir = %+v", c)
	}
	missing := filepath.Join(dir, "absent")
	if c := DirectoryProbe(CheckLogsDirectory, missing).Run(context.Background()); c.Status != StatusWarning || c.Values["exists"] != false {
		t.Fatalf("missing dir = %+v", c)
	}
}

func TestDirectoryProbeIgnoresWritePermission(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "readonly")
	if err := os.Mkdir(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	c := DirectoryProbe(CheckLogsDirectory, dir).Run(context.Background())
	if c.Status != StatusHealthy || c.Values["exists"] != true || c.Detail != "" {
		t.Fatalf("read-only dir = %+v", c)
	}
}

func TestSnapshotWorst(t *testing.T) {
	snap := Snapshot{Checks: map[string]Check{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusWarning},
	}}
	if snap.Worst() != StatusWarning {
		t.Fatalf("Worst = %s", snap.Worst())
	}
	snap.Checks["c"] = Check{Status: StatusDegraded}
	if snap.Worst() != StatusDegraded {
		t.Fatalf("Worst = %s", snap.Worst())
	}
	if (Snapshot{}).Worst() != StatusHealthy {
		t.Fatal("empty snapshot should be healthy")
	}
}

func TestCheckMarshalsFlat(t *testing.T) {
	data, err := json.Marshal(Check{Status: StatusHealthy, Values: map[string]any{"free_percent": 42.5}})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"free_percent":42.5,"status":"healthy"}` {
		t.Fatalf("json = %s", data)
	}
}

func TestTrackerEscalatesCriticalKinds(t *testing.T) {
	emitter, sink := newCaptureEmitter()
	tracker := NewTracker(emitter, nil)
	ctx := logging.WithRun(context.Background(), "42", "")

	tracker.Track(ctx, "service unreachable", "x", nil)
	errs := sink.byLevel(logging.LevelError)
	if len(errs) != 2 {
		t.Fatalf("critical kind produced %d records, want 2", len(errs))
	}
	if errs[0].Message != "Error: service unreachable" || errs[1].Message != "CRITICAL: service unreachable - x" {
		t.Fatalf("messages = %q, %q", errs[0].Message, errs[1].Message)
	}
	fields := fieldMap(errs[0])
	if fields["error_kind"] != "service unreachable" || fields["error_message"] != "x" || fields["workflow_run"] != "42" {
		t.Fatalf("fields = %v", fields)
	}
	if _, ok := fields["context"].(map[string]any); !ok {
		t.Fatalf("context = %#v, want mapping", fields["context"])
	}

	tracker.Track(ctx, "minor_glitch", "x", map[string]any{"attempt": 2})
	if got := len(sink.byLevel(logging.LevelError)); got != 3 {
		t.Fatalf("after minor_glitch error records = %d, want 3", got)
	}
	counts := tracker.Counts()
	if counts["service unreachable"] != 1 || counts["minor_glitch"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestTrackErrorUsesStartedRunWithoutContext(t *testing.T) {
	emitter, sink := newCaptureEmitter()
	m := New(Options{Emitter: emitter})
	m.Start(context.Background(), "999", "abc123")

	m.TrackError(context.Background(), "minor_glitch", "x", nil)
	errs := sink.byLevel(logging.LevelError)
	if len(errs) != 1 {
		t.Fatalf("error records = %d, want 1", len(errs))
	}
	fields := fieldMap(errs[0])
	if fields["workflow_run"] != "999" || fields["commit_sha"] != "abc123" {
		t.Fatalf("fields = %v", fields)
	}

	m.TrackError(logging.WithRun(context.Background(), "1000", ""), "minor_glitch", "y", nil)
	errs = sink.byLevel(logging.LevelError)
	if got := fieldMap(errs[len(errs)-1])["workflow_run"]; got != "1000" {
		t.Fatalf("explicit run overridden: workflow_run = %v", got)
	}
}

func TestTrackerEmptyAllowListDisablesEscalation(t *testing.T) {
	emitter, sink := newCaptureEmitter()
	NewTracker(emitter, []string{}).Track(context.Background(), "service unreachable", "x", nil)
	if got := len(sink.byLevel(logging.LevelError)); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	run, sha := "7", "deadbeef"
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	original := Summary{
		WorkflowName:    "nightly",
		WorkflowRun:     &run,
		CommitSHA:       &sha,
		StartTime:       start,
		EndTime:         start.Add(90 * time.Second),
		DurationSeconds: 90,
		Health: Snapshot{
			Timestamp: start.Add(89 * time.Second),
			RunID:     &run,
			Checks: map[string]Check{
				CheckDiskSpace:     {Status: StatusHealthy, Values: map[string]any{"free_percent": 55.2}},
				CheckLogsDirectory: {Status: StatusWarning, Values: map[string]any{"exists": false}},
				CheckAWSConfigured: {Status: StatusDegraded, Detail: "probe timed out after 10s", Values: map[string]any{"configured": false}},
			},
		},
		ErrorCounts: map[string]int{"minor_glitch": 2},
	}
	path := SummaryPath(filepath.Join(t.TempDir(), "nested"))
	if err := WriteSummary(context.Background(), path, original); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	got, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	want, _ := json.Marshal(original)
	have, _ := json.Marshal(got)
	if string(want) != string(have) {
		t.Fatalf("round trip mismatch\nwant %s\nhave %s", want, have)
	}
	if !got.StartTime.Equal(original.StartTime) || *got.WorkflowRun != run {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestSummaryDurationNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		offset := time.Duration(rapid.Int64Range(-int64(time.Hour), int64(time.Hour)).Draw(t, "offset"))
		calls := 0
		clock := func() time.Time {
			calls++
			if calls == 1 {
				return start
			}
			return start.Add(offset)
		}
		m := New(Options{Now: clock})
		m.aggregator.now = clock
		dir, err := os.MkdirTemp("", "runwatch-summary-*")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(dir)

		summary, err := m.GenerateSummary(context.Background(), dir)
		if err != nil {
			t.Fatalf("GenerateSummary: %v", err)
		}
		if summary.DurationSeconds < 0 {
			t.Fatalf("duration = %v", summary.DurationSeconds)
		}
		if offset >= 0 {
			want := round(offset.Seconds(), 2)
			if summary.DurationSeconds != want {
				t.Fatalf("duration = %v, want %v", summary.DurationSeconds, want)
			}
		}
	})
}

type recordingHistory struct {
	paths []string
}

func (h *recordingHistory) Record(_ context.Context, _ Summary, path string) error {
	h.paths = append(h.paths, path)
	return nil
}

type failingExporter struct{ calls int }

func (f *failingExporter) WriteTextfile(string) error {
	f.calls++
	return errors.New("read-only filesystem")
}

func TestSummaryDurationMatchesPersistedTimes(t *testing.T) {
	emitter, _ := newCaptureEmitter()
	m := New(Options{Emitter: emitter, Aggregator: NewAggregator(time.Second)})
	time.Sleep(20 * time.Millisecond)

	dir := t.TempDir()
	if _, err := m.GenerateSummary(context.Background(), dir); err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	got, err := ReadSummary(SummaryPath(dir))
	if err != nil {
		t.Fatalf("ReadSummary: %v", err)
	}
	want := round(got.EndTime.Sub(got.StartTime).Seconds(), 2)
	if got.DurationSeconds != want || got.DurationSeconds < 0.02 {
		t.Fatalf("duration_seconds = %v, persisted times give %v", got.DurationSeconds, want)
	}
}

func TestGenerateSummaryTwiceAndCollaborators(t *testing.T) {
	emitter, sink := newCaptureEmitter()
	history := &recordingHistory{}
	exporter := &failingExporter{}
	m := New(Options{Emitter: emitter, History: history, Metrics: exporter})
	ctx := m.Start(context.Background(), "1", "")
	m.TrackError(ctx, "minor_glitch", "flaky", nil)
	dir := t.TempDir()

	first, err := m.GenerateSummary(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.GenerateSummary(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if second.EndTime.Before(first.EndTime) {
		t.Fatal("second summary ended before the first")
	}
	if len(history.paths) != 2 || history.paths[0] != SummaryPath(dir) {
		t.Fatalf("history paths = %v", history.paths)
	}
	if exporter.calls != 2 || len(sink.byLevel(logging.LevelWarning)) != 2 {
		t.Fatalf("exporter calls = %d, warnings = %d", exporter.calls, len(sink.byLevel(logging.LevelWarning)))
	}
	if first.ErrorCounts["minor_glitch"] != 1 || first.CommitSHA != nil {
		t.Fatalf("summary = %+v", first)
	}
}

func TestGenerateSummaryReportsWriteFailure(t *testing.T) {
	emitter, sink := newCaptureEmitter()
	m := New(Options{Emitter: emitter})
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GenerateSummary(context.Background(), filepath.Join(blocker, "results")); err == nil {
		t.Fatal("expected error when result dir cannot be created")
	}
	if len(sink.byLevel(logging.LevelError)) != 1 {
		t.Fatalf("error records = %d, want 1", len(sink.byLevel(logging.LevelError)))
	}
}

func TestEndToEndScenario(t *testing.T) {
	root := t.TempDir()
	logDir := filepath.Join(root, "logs")
	resultDir := filepath.Join(root, "test-results")
	emitter, err := logging.New("ollama-workflow", logging.Options{Sinks: logging.SinkOptions{
		Dir:            logDir,
		DisableConsole: true,
	}})
	if err != nil {
		t.Fatal(err)
	}
	agg := NewAggregator(time.Second,
		diskProbe("/", 10, fixedUsage(100, 80)),
		DirectoryProbe(CheckLogsDirectory, logDir),
		ReachabilityProbe(CheckAWSConfigured, staticChecker(false)),
	)
	table := NewTable(120, map[string]float64{"model_download": 300})
	m := New(Options{Emitter: emitter, Aggregator: agg, Table: &table})
	t.Cleanup(func() { _ = m.Close() })

	ctx := m.Start(context.Background(), "999", "abc123")
	err = m.Operation(ctx, "test_operation", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		t.Fatalf("Operation: %v", err)
	}
	decision := table.Classify("test_operation", 1.0)
	if !decision.WithinBudget || decision.Threshold != 120 {
		t.Fatalf("decision = %+v", decision)
	}
	snap := m.HealthCheck(ctx)
	if snap.RunID == nil || *snap.RunID != "999" {
		t.Fatalf("snapshot run = %v", snap.RunID)
	}

	summary, err := m.GenerateSummary(ctx, resultDir)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	path := SummaryPath(resultDir)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("summary file: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["duration_seconds"].(float64) < 1.0 {
		t.Fatalf("duration_seconds = %v", raw["duration_seconds"])
	}
	checks := raw["health"].(map[string]any)["checks"].(map[string]any)
	if len(checks) != 3 {
		t.Fatalf("checks = %v", checks)
	}
	if raw["workflow_run"] != "999" || raw["commit_sha"] != "abc123" {
		t.Fatalf("identity = %v/%v", raw["workflow_run"], raw["commit_sha"])
	}
	if summary.Health.Checks[CheckAWSConfigured].Status != StatusDegraded {
		t.Fatalf("aws check = %+v", summary.Health.Checks[CheckAWSConfigured])
	}
	if emitter.SinkFailures() != 0 {
		t.Fatalf("sink failures: %v", emitter.LastSinkError())
	}
}
