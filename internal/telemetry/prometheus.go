package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const unitLabel = "unit"

// PromObserver mirrors metric records into a private Prometheus registry as
// last-value gauges. One GaugeVec exists per metric name; its label set is
// fixed by the first observation (sorted tag keys plus unit).
type PromObserver struct {
	namespace string
	registry  *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]*promGauge

	dropped atomic.Uint64
	lastErr atomic.Pointer[error]
}

type promGauge struct {
	vec    *prometheus.GaugeVec
	labels []string
}

// NewPromObserver creates an observer whose metric names are prefixed with
// namespace (for example "runwatch").
func NewPromObserver(namespace string) *PromObserver {
	return &PromObserver{
		namespace: SanitizeName(namespace),
		registry:  prometheus.NewRegistry(),
		gauges:    make(map[string]*promGauge),
	}
}

// Registry exposes the gatherer backing this observer.
func (p *PromObserver) Registry() *prometheus.Registry { return p.registry }

// Dropped counts observations that could not be recorded.
func (p *PromObserver) Dropped() uint64 { return p.dropped.Load() }

// LastError returns the reason for the most recent dropped observation.
func (p *PromObserver) LastError() error {
	if err := p.lastErr.Load(); err != nil {
		return *err
	}
	return nil
}

func (p *PromObserver) ObserveMetric(_ context.Context, name string, value float64, unit string, tags map[string]string) {
	metricName := SanitizeName(name)
	labels, values, err := promLabels(unit, tags)
	if err != nil {
		p.drop(fmt.Errorf("metric %s: %w", name, err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.gauges[metricName]
	if !ok {
		vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      metricName,
			Help:      "Last observed value of " + name,
		}, labels)
		if err := p.registry.Register(vec); err != nil {
			p.drop(fmt.Errorf("register %s: %w", metricName, err))
			return
		}
		g = &promGauge{vec: vec, labels: labels}
		p.gauges[metricName] = g
	}
	if strings.Join(g.labels, ",") != strings.Join(labels, ",") {
		p.drop(fmt.Errorf("metric %s: label set %v differs from registered %v", name, labels, g.labels))
		return
	}
	gauge, err := g.vec.GetMetricWith(values)
	if err != nil {
		p.drop(fmt.Errorf("metric %s: %w", name, err))
		return
	}
	gauge.Set(value)
}

// WriteTextfile exports the registry in the node-exporter textfile format.
// The file is written atomically.
func (p *PromObserver) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (p *PromObserver) drop(err error) {
	p.dropped.Add(1)
	p.lastErr.Store(&err)
}

func promLabels(unit string, tags map[string]string) ([]string, prometheus.Labels, error) {
	values := prometheus.Labels{unitLabel: unit}
	for key, value := range tags {
		label := SanitizeName(key)
		if _, dup := values[label]; dup {
			return nil, nil, fmt.Errorf("tag %q collides with label %q", key, label)
		}
		values[label] = value
	}
	labels := make([]string, 0, len(values))
	for label := range values {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels, values, nil
}

// SanitizeName maps name onto the Prometheus metric and label charset.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name) + 1)
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
