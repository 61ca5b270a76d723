package logging

import (
	"context"
	"fmt"
	"strconv"
)

// MetricObserver mirrors metric records into another system. Observers are
// called after the record is emitted and must not block.
type MetricObserver interface {
	ObserveMetric(ctx context.Context, name string, value float64, unit string, tags map[string]string)
}

// Metric emits one info record tagged as a metric:
//
//	METRIC: model_download_duration=12.5s
//
// It never fails. Each call is an independent record; nothing is aggregated.
func (e *Emitter) Metric(ctx context.Context, name string, value float64, unit string, tags map[string]string) {
	if e == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e.log(ctx, LevelInfo, callerPC(1), fmt.Sprintf("METRIC: %s=%s%s", name, formatMetricValue(value), unit), []any{
		String(FieldRecordType, "metric"),
		String("metric_name", name),
		Float64("value", value),
		String("unit", unit),
		Tags("tags", tags),
	})
	for _, obs := range e.observers {
		if obs != nil {
			obs.ObserveMetric(ctx, name, value, unit, tags)
		}
	}
}

func formatMetricValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
