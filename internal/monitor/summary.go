package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"runwatch/internal/fileutil"
)

// SummaryFileName is the file GenerateSummary writes into the result directory.
const SummaryFileName = "monitoring_summary.json"

// ErrSummaryLocked is returned when another writer holds the summary lock
// past the caller's deadline.
var ErrSummaryLocked = errors.New("summary file locked by another writer")

const lockRetryDelay = 50 * time.Millisecond

// Summary is the end-of-run report.
type Summary struct {
	WorkflowName    string         `json:"workflow_name" yaml:"workflow_name"`
	WorkflowRun     *string        `json:"workflow_run" yaml:"workflow_run"`
	CommitSHA       *string        `json:"commit_sha" yaml:"commit_sha"`
	StartTime       time.Time      `json:"start_time" yaml:"start_time"`
	EndTime         time.Time      `json:"end_time" yaml:"end_time"`
	DurationSeconds float64        `json:"duration_seconds" yaml:"duration_seconds"`
	Health          Snapshot       `json:"health" yaml:"health"`
	ErrorCounts     map[string]int `json:"error_counts,omitempty" yaml:"error_counts,omitempty"`
}

// SummaryPath returns the summary file location inside resultDir.
func SummaryPath(resultDir string) string {
	return filepath.Join(resultDir, SummaryFileName)
}

// WriteSummary persists s to path atomically while holding <path>.lock.
func WriteSummary(ctx context.Context, path string, s Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock summary %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("lock summary %s: %w", path, ErrSummaryLocked)
	}
	defer func() { _ = lock.Unlock() }()

	if err := fileutil.WriteJSONAtomic(path, s); err != nil {
		return fmt.Errorf("write summary %s: %w", path, err)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("decode summary %s: %w", path, err)
	}
	return s, nil
}
