package logging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrSpanAborted describes work that exited through runtime.Goexit.
var ErrSpanAborted = errors.New("span aborted before work returned")

var noopTracer = noop.NewTracerProvider().Tracer("runwatch")

// WithSpan runs work as a named operation. It emits an info start record,
// then exactly one end record on every exit path: info on success, error on
// failure or panic. The work's error is returned unchanged and panics are
// re-raised after the end record is written.
func WithSpan[T any](ctx context.Context, e *Emitter, operation string, work func(context.Context) (T, error)) (T, error) {
	return withSpan(ctx, e, operation, callerPC(1), work)
}

// Time is WithSpan for work without a result.
func (e *Emitter) Time(ctx context.Context, operation string, work func(context.Context) error) error {
	_, err := withSpan(ctx, e, operation, callerPC(1), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, work(ctx)
	})
	return err
}

func withSpan[T any](ctx context.Context, e *Emitter, operation string, pc uintptr, work func(context.Context) (T, error)) (result T, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.tracerOrNoop().Start(ctx, operation,
		trace.WithAttributes(attribute.String(FieldOperation, operation)))

	e.emit(ctx, LevelInfo, pc, "Starting: "+operation, []Field{String(FieldOperation, operation)})
	start := time.Now()
	returned := false

	defer func() {
		elapsed := time.Since(start)
		if rec := recover(); rec != nil {
			e.spanFailed(ctx, span, pc, operation, elapsed, fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
		switch {
		case !returned:
			e.spanFailed(ctx, span, pc, operation, elapsed, ErrSpanAborted)
		case err != nil:
			e.spanFailed(ctx, span, pc, operation, elapsed, err)
		default:
			span.SetStatus(codes.Ok, "")
			span.End()
			e.emit(ctx, LevelInfo, pc,
				fmt.Sprintf("Completed: %s (%.2fs)", operation, elapsed.Seconds()),
				[]Field{String(FieldOperation, operation), Seconds(FieldDurationSeconds, elapsed)})
		}
	}()

	result, err = work(ctx)
	returned = true
	return result, err
}

func (e *Emitter) spanFailed(ctx context.Context, span trace.Span, pc uintptr, operation string, elapsed time.Duration, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	e.emit(ctx, LevelError, pc,
		fmt.Sprintf("Failed: %s (%.2fs) - %v", operation, elapsed.Seconds(), err),
		[]Field{String(FieldOperation, operation), Seconds(FieldDurationSeconds, elapsed), Error(err)})
}

func (e *Emitter) tracerOrNoop() trace.Tracer {
	if e == nil || e.tracer == nil {
		return noopTracer
	}
	return e.tracer
}
