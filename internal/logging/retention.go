package logging

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// DailyLogTargets returns the retention targets covering the day files
// written by NewSinkSet in dir, including compressed copies.
func DailyLogTargets(dir string, exclude ...string) []RetentionTarget {
	patterns := []string{"*.log", "*.json", "*.log.zst", "*.json.zst"}
	targets := make([]RetentionTarget, 0, len(patterns))
	for _, p := range patterns {
		targets = append(targets, RetentionTarget{Dir: dir, Pattern: p, Exclude: exclude})
	}
	return targets
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays. A retentionDays value of 0 disables pruning. It returns
// the removed paths; failures are logged and skipped.
func CleanupOldLogs(e *Emitter, retentionDays int, targets ...RetentionTarget) []string {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var removed []string
	walkTargets(targets, cutoff, func(path string) {
		if err := os.Remove(path); err != nil {
			e.Warn("log retention remove failed; file remains",
				String("path", path),
				Error(err),
			)
			return
		}
		removed = append(removed, path)
		e.Info("log pruned", String("path", path))
	})
	return removed
}

// walkTargets calls fn for every non-excluded regular file matching a target
// whose modification time is before cutoff.
func walkTargets(targets []RetentionTarget, cutoff time.Time, fn func(path string)) {
	exclusions := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if trimmed := strings.TrimSpace(path); trimmed != "" {
				if abs, err := filepath.Abs(trimmed); err == nil {
					exclusions[abs] = struct{}{}
				}
			}
		}
	}

	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				matched, err := filepath.Match(pat, name)
				if err != nil || !matched {
					continue
				}
			}
			fullPath := filepath.Join(dir, name)
			if abs, err := filepath.Abs(fullPath); err == nil {
				fullPath = abs
			}
			if _, skip := exclusions[fullPath]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			fn(fullPath)
		}
	}
}
