package telemetry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "runwatch"

// OTelObserver records every metric observation into a Float64Histogram
// named "runwatch.<name>". Instruments are created lazily per name.
type OTelObserver struct {
	meter metric.Meter

	mu    sync.Mutex
	hists map[string]metric.Float64Histogram

	dropped atomic.Uint64
}

// NewOTelObserver creates an observer on provider. No exporter is configured
// here; the caller owns the provider and its readers.
func NewOTelObserver(provider metric.MeterProvider) *OTelObserver {
	return &OTelObserver{
		meter: provider.Meter(instrumentationName),
		hists: make(map[string]metric.Float64Histogram),
	}
}

// Dropped counts observations whose instrument could not be created.
func (o *OTelObserver) Dropped() uint64 { return o.dropped.Load() }

func (o *OTelObserver) ObserveMetric(ctx context.Context, name string, value float64, unit string, tags map[string]string) {
	hist, ok := o.histogram(name, unit)
	if !ok {
		return
	}
	hist.Record(ctx, value, metric.WithAttributes(tagAttributes(tags)...))
}

func (o *OTelObserver) histogram(name, unit string) (metric.Float64Histogram, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hist, ok := o.hists[name]; ok {
		return hist, true
	}
	opts := []metric.Float64HistogramOption{
		metric.WithDescription("Observations of " + name),
	}
	if unit != "" {
		opts = append(opts, metric.WithUnit(unit))
	}
	hist, err := o.meter.Float64Histogram(instrumentationName+"."+name, opts...)
	if err != nil {
		o.dropped.Add(1)
		return nil, false
	}
	o.hists[name] = hist
	return hist, true
}

func tagAttributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, tags[k]))
	}
	return attrs
}

// Tracer returns the runwatch tracer from provider, or a noop tracer when
// provider is nil.
func Tracer(provider trace.TracerProvider) trace.Tracer {
	if provider == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return provider.Tracer(instrumentationName)
}
