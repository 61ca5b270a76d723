package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"runwatch/internal/monitor"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	// DefaultListLimit caps List when the caller passes a non-positive limit.
	DefaultListLimit = 20
)

// Run is one indexed summary.
type Run struct {
	ID              int64     `json:"id" yaml:"id"`
	WorkflowName    string    `json:"workflow_name" yaml:"workflow_name"`
	WorkflowRun     string    `json:"workflow_run,omitempty" yaml:"workflow_run,omitempty"`
	CommitSHA       string    `json:"commit_sha,omitempty" yaml:"commit_sha,omitempty"`
	StartTime       time.Time `json:"start_time" yaml:"start_time"`
	EndTime         time.Time `json:"end_time" yaml:"end_time"`
	DurationSeconds float64   `json:"duration_seconds" yaml:"duration_seconds"`
	WorstStatus     string    `json:"worst_status" yaml:"worst_status"`
	SummaryPath     string    `json:"summary_path" yaml:"summary_path"`
	RecordedAt      time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// Store is the SQLite-backed run index.
type Store struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger routes busy retries and indexing diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates or connects to the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record indexes a summary written at summaryPath.
func (s *Store) Record(ctx context.Context, summary monitor.Summary, summaryPath string) error {
	ctx = ensureContext(ctx)
	err := s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO runs
			(workflow_name, workflow_run, commit_sha, start_time, end_time,
			 duration_seconds, worst_status, summary_path, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.WorkflowName,
			nullable(summary.WorkflowRun),
			nullable(summary.CommitSHA),
			formatTime(summary.StartTime),
			formatTime(summary.EndTime),
			summary.DurationSeconds,
			string(summary.Health.Worst()),
			summaryPath,
			formatTime(s.now()),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "run indexed",
		slog.String("workflow", summary.WorkflowName),
		slog.String("summary_path", summaryPath),
	)
	return nil
}

// List returns the most recent runs first, optionally restricted to one
// workflow name.
func (s *Store) List(ctx context.Context, workflow string, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT id, workflow_name, workflow_run, commit_sha, start_time, end_time,
		duration_seconds, worst_status, summary_path, recorded_at FROM runs`
	args := []any{}
	if workflow = strings.TrimSpace(workflow); workflow != "" {
		query += " WHERE workflow_name = ?"
		args = append(args, workflow)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var runs []Run
	err := s.retryOnBusy(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		runs = runs[:0]
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			runs = append(runs, run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run                  Run
		workflowRun, commit  sql.NullString
		start, end, recorded string
	)
	if err := rows.Scan(&run.ID, &run.WorkflowName, &workflowRun, &commit, &start, &end,
		&run.DurationSeconds, &run.WorstStatus, &run.SummaryPath, &recorded); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.WorkflowRun = workflowRun.String
	run.CommitSHA = commit.String
	run.StartTime = parseTime(start)
	run.EndTime = parseTime(end)
	run.RecordedAt = parseTime(recorded)
	return run, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *Store) retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		s.logger.DebugContext(ctx, "history database busy; retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullable(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.Local()
}
