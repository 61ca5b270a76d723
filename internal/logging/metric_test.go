package logging

import (
	"context"
	"testing"
)

type recordingObserver struct {
	names []string
	tags  []map[string]string
}

func (o *recordingObserver) ObserveMetric(_ context.Context, name string, _ float64, _ string, tags map[string]string) {
	o.names = append(o.names, name)
	o.tags = append(o.tags, tags)
}

func TestMetricRecordShape(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	obs := &recordingObserver{}
	e := NewWithSinks("metrics", LevelDebug, mem)
	e.observers = []MetricObserver{obs}

	e.Metric(context.Background(), "model_download_duration", 12.5, "s", map[string]string{"model": "llama", "arch": "x86"})

	rec := mem.last()
	if rec.Level != LevelInfo {
		t.Fatalf("expected info, got %s", rec.Level)
	}
	if rec.Message != "METRIC: model_download_duration=12.5s" {
		t.Fatalf("unexpected message %q", rec.Message)
	}
	fields := FieldsToMap(rec.Fields)
	if fields[FieldRecordType] != "metric" || fields["metric_name"] != "model_download_duration" {
		t.Fatalf("unexpected fields %#v", fields)
	}
	if fields["value"] != 12.5 || fields["unit"] != "s" {
		t.Fatalf("unexpected value fields %#v", fields)
	}
	tags, ok := fields["tags"].(map[string]any)
	if !ok || tags["model"] != "llama" || tags["arch"] != "x86" {
		t.Fatalf("unexpected tags %#v", fields["tags"])
	}
	if rec.Fields[4].Value.Group()[0].Key != "arch" {
		t.Fatal("expected tags sorted by key")
	}
	if len(obs.names) != 1 || obs.names[0] != "model_download_duration" {
		t.Fatalf("observer not called: %v", obs.names)
	}
}

func TestMetricObserversRunBelowFloor(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	obs := &recordingObserver{}
	e := NewWithSinks("metrics", LevelError, mem)
	e.observers = []MetricObserver{obs}

	e.Metric(context.Background(), "status", 1, "", nil)

	if len(mem.messages()) != 0 {
		t.Fatal("metric record should be suppressed by the floor")
	}
	if len(obs.names) != 1 {
		t.Fatal("observers should still see the metric")
	}
}

func TestNilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	e.Info("nothing")
	e.Metric(context.Background(), "x", 1, "", nil)
	if err := e.Time(context.Background(), "op", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Time on nil emitter: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close on nil emitter: %v", err)
	}
}
