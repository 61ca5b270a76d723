package logging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Options describes Emitter construction parameters.
type Options struct {
	// Floor is the minimum level at which records are constructed at all.
	// Empty means debug.
	Floor string
	Sinks SinkOptions
	// Tracer receives one span per WithSpan call. Nil uses a noop tracer.
	Tracer    trace.Tracer
	Observers []MetricObserver
	// OnSinkError is called for every failed render or write.
	OnSinkError func(sink string, err error)
}

// Emitter owns one logger name, one sink set and one severity floor. It is
// safe for concurrent use; each sink receives records in call order per
// goroutine.
type Emitter struct {
	name        string
	floor       Level
	sinks       SinkSet
	sessionID   string
	tracer      trace.Tracer
	observers   []MetricObserver
	onSinkError func(string, error)
	now         func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	failures  atomic.Uint64
	lastErr   atomic.Pointer[sinkFailure]
}

type sinkFailure struct {
	err error
}

// New opens the standard console, plain-text and JSON-lines sinks for name.
func New(name string, opts Options) (*Emitter, error) {
	sinks, err := NewSinkSet(name, opts.Sinks)
	if err != nil {
		return nil, fmt.Errorf("open sinks: %w", err)
	}
	e := NewWithSinks(name, parseLevelOr(opts.Floor, LevelDebug), sinks...)
	e.tracer = opts.Tracer
	e.observers = append([]MetricObserver(nil), opts.Observers...)
	e.onSinkError = opts.OnSinkError
	return e, nil
}

// NewWithSinks builds an Emitter over an explicit, ordered sink list.
func NewWithSinks(name string, floor Level, sinks ...Sink) *Emitter {
	set := make(SinkSet, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			set = append(set, s)
		}
	}
	return &Emitter{
		name:      name,
		floor:     floor,
		sinks:     set,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// NewNop returns an Emitter that discards everything.
func NewNop() *Emitter {
	return NewWithSinks("nop", LevelError+1)
}

// Name returns the logger name stamped on every record.
func (e *Emitter) Name() string {
	if e == nil {
		return ""
	}
	return e.name
}

// SessionID identifies this Emitter instance in JSON records.
func (e *Emitter) SessionID() string {
	if e == nil {
		return ""
	}
	return e.sessionID
}

// Sinks returns the sink set in delivery order.
func (e *Emitter) Sinks() SinkSet {
	if e == nil {
		return nil
	}
	return e.sinks
}

// Enabled reports whether a record at level would be constructed.
func (e *Emitter) Enabled(level Level) bool {
	return e != nil && level >= e.floor
}

// SinkFailures returns the number of failed sink deliveries so far.
func (e *Emitter) SinkFailures() uint64 {
	if e == nil {
		return 0
	}
	return e.failures.Load()
}

// LastSinkError returns the most recent sink failure, or nil.
func (e *Emitter) LastSinkError() error {
	if e == nil {
		return nil
	}
	if f := e.lastErr.Load(); f != nil {
		return f.err
	}
	return nil
}

func (e *Emitter) Debug(msg string, args ...any) {
	e.log(context.Background(), LevelDebug, callerPC(1), msg, args)
}

func (e *Emitter) Info(msg string, args ...any) {
	e.log(context.Background(), LevelInfo, callerPC(1), msg, args)
}

func (e *Emitter) Warn(msg string, args ...any) {
	e.log(context.Background(), LevelWarning, callerPC(1), msg, args)
}

func (e *Emitter) Error(msg string, args ...any) {
	e.log(context.Background(), LevelError, callerPC(1), msg, args)
}

// Log emits a record at level, merging fields carried by ctx ahead of args.
func (e *Emitter) Log(ctx context.Context, level Level, msg string, args ...any) {
	e.log(ctx, level, callerPC(1), msg, args)
}

func (e *Emitter) log(ctx context.Context, level Level, pc uintptr, msg string, args []any) {
	if !e.Enabled(level) {
		return
	}
	e.emit(ctx, level, pc, msg, buildFields(args))
}

func (e *Emitter) emit(ctx context.Context, level Level, pc uintptr, msg string, fields []Field) {
	if !e.Enabled(level) {
		return
	}
	if e.closed.Load() {
		e.sinkFailed("emitter", ErrClosed)
		return
	}
	if ctxFields := ContextFields(ctx); len(ctxFields) > 0 {
		merged := make([]Field, 0, len(ctxFields)+len(fields))
		merged = append(merged, ctxFields...)
		fields = dedupeFields(append(merged, fields...))
	}
	e.dispatch(Record{
		Time:      e.now(),
		Level:     level,
		Logger:    e.name,
		Message:   msg,
		Fields:    fields,
		Source:    sourceFromPC(pc),
		SessionID: e.sessionID,
	})
}

// dispatch delivers rec to every admitting sink. A failing sink never stops
// delivery to the ones after it.
func (e *Emitter) dispatch(rec Record) {
	for _, sink := range e.sinks {
		if rec.Level < sink.MinLevel() {
			continue
		}
		data, err := sink.Render(rec)
		if err == nil {
			err = sink.Write(data)
		}
		if err != nil {
			e.sinkFailed(sink.Name(), err)
		}
	}
}

func (e *Emitter) sinkFailed(name string, err error) {
	e.failures.Add(1)
	e.lastErr.Store(&sinkFailure{err: fmt.Errorf("%s sink: %w", name, err)})
	if e.onSinkError != nil {
		e.onSinkError(name, err)
	}
}

// Close releases every sink. It is idempotent; records logged afterwards are
// dropped and counted as sink failures.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.sinks.Close()
	})
	return e.closeErr
}
