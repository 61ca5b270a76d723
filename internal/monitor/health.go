package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Status is the outcome of one health probe.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusDegraded Status = "degraded"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	default:
		return 2
	}
}

// Reference probe names.
const (
	CheckDiskSpace     = "disk_space"
	CheckLogsDirectory = "logs_directory"
	CheckAWSConfigured = "aws_configured"
)

// Check is one probe result. It marshals flat:
//
//	{"status":"healthy","free_percent":42.5}
type Check struct {
	Status Status
	Detail string
	Values map[string]any
}

func (c Check) asMap() map[string]any {
	out := make(map[string]any, len(c.Values)+2)
	for k, v := range c.Values {
		out[k] = v
	}
	out["status"] = string(c.Status)
	if c.Detail != "" {
		out["detail"] = c.Detail
	}
	return out
}

func (c Check) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.asMap())
}

func (c *Check) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Check{}
	if status, ok := raw["status"].(string); ok {
		c.Status = Status(status)
	}
	if detail, ok := raw["detail"].(string); ok {
		c.Detail = detail
	}
	delete(raw, "status")
	delete(raw, "detail")
	if len(raw) > 0 {
		c.Values = raw
	}
	return nil
}

// MarshalYAML renders the same flat shape as JSON.
func (c Check) MarshalYAML() (any, error) {
	return c.asMap(), nil
}

// Snapshot is a point-in-time set of independent probe results. It carries
// no overall status; see Worst for the documented rollup.
type Snapshot struct {
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
	RunID     *string          `json:"workflow_run" yaml:"workflow_run"`
	Checks    map[string]Check `json:"checks" yaml:"checks"`
}

// Worst returns the most severe status across all checks, ordering
// degraded above warning above healthy. An empty snapshot is healthy.
func (s Snapshot) Worst() Status {
	worst := StatusHealthy
	for _, c := range s.Checks {
		if c.Status.rank() > worst.rank() {
			worst = c.Status
		}
	}
	return worst
}

// Names returns the check names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Probe is one independent health check.
type Probe struct {
	Name string
	Run  func(ctx context.Context) Check
	// OnFailure shapes the check reported when Run times out or panics.
	// Nil reports a bare degraded check.
	OnFailure func(detail string) Check
}

func (p Probe) failure(detail string) Check {
	if p.OnFailure != nil {
		return p.OnFailure(detail)
	}
	return Check{Status: StatusDegraded, Detail: detail}
}

// DefaultProbeTimeout bounds each probe when the aggregator has none set.
const DefaultProbeTimeout = 10 * time.Second

// Aggregator runs probes concurrently, each bounded by a timeout.
type Aggregator struct {
	probes  []Probe
	timeout time.Duration
	now     func() time.Time
}

// NewAggregator builds an aggregator over probes. A non-positive timeout uses
// DefaultProbeTimeout.
func NewAggregator(timeout time.Duration, probes ...Probe) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Aggregator{probes: append([]Probe(nil), probes...), timeout: timeout, now: time.Now}
}

// Check runs every probe and never fails: a probe that times out or panics
// reports its failure shape instead.
func (a *Aggregator) Check(ctx context.Context) Snapshot {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]Check, len(a.probes))
	var wg sync.WaitGroup
	for i, probe := range a.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.runProbe(ctx, probe)
		}()
	}
	wg.Wait()

	snap := Snapshot{Timestamp: a.now(), Checks: make(map[string]Check, len(a.probes))}
	for i, probe := range a.probes {
		snap.Checks[probe.Name] = results[i]
	}
	return snap
}

func (a *Aggregator) runProbe(ctx context.Context, probe Probe) Check {
	probeCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan Check, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- probe.failure(fmt.Sprintf("probe panicked: %v", rec))
			}
		}()
		if probe.Run == nil {
			done <- probe.failure("probe not implemented")
			return
		}
		done <- probe.Run(probeCtx)
	}()

	select {
	case c := <-done:
		return c
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			return probe.failure(fmt.Sprintf("probe cancelled: %v", ctx.Err()))
		}
		return probe.failure(fmt.Sprintf("probe timed out after %s", a.timeout))
	}
}

// DiskProbe reports free space on the volume holding path: healthy above
// minFreePercent, warning at or below it, degraded when the query fails.
func DiskProbe(path string, minFreePercent float64) Probe {
	return diskProbe(path, minFreePercent, statfsUsage)
}

func diskProbe(path string, minFreePercent float64, usage func(string) (total, free uint64, err error)) Probe {
	return Probe{
		Name: CheckDiskSpace,
		Run: func(context.Context) Check {
			total, free, err := usage(path)
			if err != nil {
				return Check{Status: StatusDegraded, Detail: err.Error()}
			}
			if total == 0 {
				return Check{Status: StatusDegraded, Detail: fmt.Sprintf("%s reports zero capacity", path)}
			}
			pct := float64(free) * 100 / float64(total)
			status := StatusWarning
			if pct > minFreePercent {
				status = StatusHealthy
			}
			return Check{Status: status, Values: map[string]any{"free_percent": round(pct, 1)}}
		},
	}
}

func statfsUsage(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}

// DirectoryProbe reports whether dir exists as a directory: healthy when it
// does, warning otherwise. Write access is a preflight concern, not health.
func DirectoryProbe(name, dir string) Probe {
	return Probe{
		Name: name,
		Run: func(context.Context) Check {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				return Check{Status: StatusWarning, Values: map[string]any{"exists": false}}
			}
			return Check{Status: StatusHealthy, Values: map[string]any{"exists": true}}
		},
		OnFailure: func(detail string) Check {
			return Check{Status: StatusWarning, Detail: detail, Values: map[string]any{"exists": false}}
		},
	}
}

// ConfiguredChecker is the reachability collaborator behind a probe.
type ConfiguredChecker interface {
	CheckConfigured(ctx context.Context) bool
}

// ReachabilityProbe delegates to checker: true is healthy, false, a timeout
// or a panic is degraded.
func ReachabilityProbe(name string, checker ConfiguredChecker) Probe {
	return Probe{
		Name: name,
		Run: func(ctx context.Context) Check {
			if checker == nil {
				return Check{Status: StatusDegraded, Detail: "no checker configured", Values: map[string]any{"configured": false}}
			}
			if checker.CheckConfigured(ctx) {
				return Check{Status: StatusHealthy, Values: map[string]any{"configured": true}}
			}
			return Check{Status: StatusDegraded, Values: map[string]any{"configured": false}}
		},
		OnFailure: func(detail string) Check {
			return Check{Status: StatusDegraded, Detail: detail, Values: map[string]any{"configured": false}}
		},
	}
}

// ReferenceProbes returns the three standard probes.
func ReferenceProbes(storagePath string, minFreePercent float64, logDir string, checker ConfiguredChecker) []Probe {
	return []Probe{
		DiskProbe(storagePath, minFreePercent),
		DirectoryProbe(CheckLogsDirectory, logDir),
		ReachabilityProbe(CheckAWSConfigured, checker),
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
