package logging

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"
)

func TestWithSpanSuccess(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	e := NewWithSinks("span", LevelDebug, mem)

	got, err := WithSpan(context.Background(), e, "model_download", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("WithSpan = %d, %v", got, err)
	}

	msgs := mem.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 records, got %v", msgs)
	}
	if msgs[0] != "Starting: model_download" {
		t.Fatalf("unexpected start %q", msgs[0])
	}
	if !strings.HasPrefix(msgs[1], "Completed: model_download (") || !strings.HasSuffix(msgs[1], "s)") {
		t.Fatalf("unexpected end %q", msgs[1])
	}
	end := mem.last()
	if end.Level != LevelInfo {
		t.Fatalf("expected info end record, got %s", end.Level)
	}
	fields := FieldsToMap(end.Fields)
	if fields[FieldOperation] != "model_download" {
		t.Fatalf("missing operation field %#v", fields)
	}
	if secs, ok := fields[FieldDurationSeconds].(float64); !ok || secs < 0 {
		t.Fatalf("unexpected duration %#v", fields[FieldDurationSeconds])
	}
	if end.Source.ShortFunction() != "TestWithSpanSuccess" {
		t.Fatalf("span records should point at the caller, got %q", end.Source.Function)
	}
}

type downloadError struct{ model string }

func (e *downloadError) Error() string { return "download failed: " + e.model }

func TestWithSpanFailurePreservesError(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	e := NewWithSinks("span", LevelDebug, mem)
	want := &downloadError{model: "llama"}

	_, err := WithSpan(context.Background(), e, "model_download", func(ctx context.Context) (string, error) {
		return "", want
	})
	if err != want {
		t.Fatalf("expected identical error, got %v", err)
	}
	var de *downloadError
	if !errors.As(err, &de) {
		t.Fatal("errors.As lost the concrete type")
	}

	msgs := mem.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 records, got %v", msgs)
	}
	end := mem.last()
	if end.Level != LevelError {
		t.Fatalf("expected error end record, got %s", end.Level)
	}
	if !strings.HasPrefix(end.Message, "Failed: model_download (") || !strings.HasSuffix(end.Message, "s) - download failed: llama") {
		t.Fatalf("unexpected failure message %q", end.Message)
	}
	if FieldsToMap(end.Fields)[FieldError] != "download failed: llama" {
		t.Fatalf("missing error field %#v", FieldsToMap(end.Fields))
	}
}

func TestWithSpanPanicIsReraisedAfterEndRecord(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	e := NewWithSinks("span", LevelDebug, mem)

	defer func() {
		rec := recover()
		if rec != "kaboom" {
			t.Fatalf("expected original panic value, got %v", rec)
		}
		msgs := mem.messages()
		if len(msgs) != 2 || !strings.Contains(msgs[1], "panic: kaboom") {
			t.Fatalf("unexpected records %v", msgs)
		}
	}()
	_ = e.Time(context.Background(), "explode", func(ctx context.Context) error {
		panic("kaboom")
	})
	t.Fatal("panic was swallowed")
}

func TestWithSpanGoexitStillEmitsEndRecord(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	e := NewWithSinks("span", LevelDebug, mem)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Time(context.Background(), "exit_early", func(ctx context.Context) error {
			runtime.Goexit()
			return nil
		})
	}()
	<-done

	msgs := mem.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1], ErrSpanAborted.Error()) {
		t.Fatalf("unexpected records %v", msgs)
	}
}

func TestWithSpanCancellationIsReported(t *testing.T) {
	mem := newMemSink("mem", LevelDebug)
	e := NewWithSinks("span", LevelDebug, mem)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Time(ctx, "wait", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if end := mem.last(); end.Level != LevelError {
		t.Fatalf("expected failure record, got %s %q", end.Level, end.Message)
	}
}

func TestWithSpanAlwaysTwoRecords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fail := rapid.Bool().Draw(t, "fail")
		value := rapid.Int().Draw(t, "value")
		mem := newMemSink("mem", LevelDebug)
		e := NewWithSinks("span", LevelDebug, mem)
		sentinel := errors.New("work failed")

		got, err := WithSpan(context.Background(), e, "op", func(context.Context) (int, error) {
			if fail {
				return 0, sentinel
			}
			return value, nil
		})
		if len(mem.messages()) != 2 {
			t.Fatalf("expected exactly 2 records, got %v", mem.messages())
		}
		if fail && err != sentinel {
			t.Fatalf("expected sentinel, got %v", err)
		}
		if !fail && (err != nil || got != value) {
			t.Fatalf("expected %d, got %d %v", value, got, err)
		}
	})
}

func TestWithSpanBridgesToTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mem := newMemSink("mem", LevelDebug)
	e := NewWithSinks("span", LevelDebug, mem)
	e.tracer = provider.Tracer("test")

	_ = e.Time(context.Background(), "ok_op", func(context.Context) error { return nil })
	_ = e.Time(context.Background(), "bad_op", func(context.Context) error { return errors.New("nope") })

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	if spans[0].Name() != "ok_op" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected first span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "bad_op" || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected second span %s %v", spans[1].Name(), spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatal("expected RecordError to add an exception event")
	}
}
