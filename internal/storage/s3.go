package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"runwatch/internal/fileutil"
	"runwatch/internal/logging"
)

var (
	// ErrNotConfigured means the CLI has no usable credentials.
	ErrNotConfigured = errors.New("storage credentials not configured")
	// ErrCommand marks a failed CLI invocation; the CLI diagnostic follows.
	ErrCommand = errors.New("storage command failed")
	// ErrLocalMissing means the file or directory to upload does not exist.
	ErrLocalMissing = errors.New("local path does not exist")
)

// MetadataFile is written into a result directory before it is uploaded.
const MetadataFile = "s3_metadata.json"

// S3 wraps bucket operations performed through the aws CLI.
type S3 struct {
	runner Runner
	bucket string
	region string
	logger *logging.Emitter
	now    func() time.Time
}

// Option customizes an S3 collaborator.
type Option func(*S3)

// WithLogger records command outcomes on e.
func WithLogger(e *logging.Emitter) Option {
	return func(s *S3) { s.logger = e }
}

// WithClock overrides the time source used for workflow keys.
func WithClock(now func() time.Time) Option {
	return func(s *S3) { s.now = now }
}

// NewS3 builds a collaborator for bucket in region.
func NewS3(runner Runner, bucket, region string, opts ...Option) *S3 {
	s := &S3{
		runner: runner,
		bucket: strings.TrimSpace(bucket),
		region: strings.TrimSpace(region),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *S3) Bucket() string { return s.bucket }

func (s *S3) Region() string { return s.region }

// CheckConfigured reports whether the CLI can resolve a caller identity.
func (s *S3) CheckConfigured(ctx context.Context) bool {
	ok, _ := s.runner.Run(ctx, "sts", "get-caller-identity")
	return ok
}

// BucketExists reports whether the bucket can be listed.
func (s *S3) BucketExists(ctx context.Context) bool {
	ok, _ := s.runner.Run(ctx, "s3", "ls", s.ResultsURL(""))
	return ok
}

// EnsureBucket creates the bucket in the configured region when it does not
// exist yet.
func (s *S3) EnsureBucket(ctx context.Context) error {
	if !s.CheckConfigured(ctx) {
		s.logger.Log(ctx, logging.LevelWarning, "storage credentials not configured", logging.String("bucket", s.bucket))
		return ErrNotConfigured
	}
	if s.BucketExists(ctx) {
		s.logger.Log(ctx, logging.LevelDebug, "bucket already exists", logging.String("bucket", s.bucket))
		return nil
	}
	s.logger.Log(ctx, logging.LevelInfo, "creating bucket", logging.String("bucket", s.bucket), logging.String("region", s.region))
	ok, output := s.runner.Run(ctx, "s3", "mb", s.ResultsURL(""), "--region", s.region)
	if !ok {
		return s.failed(ctx, "create bucket", output)
	}
	return nil
}

// UploadFile copies one local file to key.
func (s *S3) UploadFile(ctx context.Context, localPath, key string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("%w: %s", ErrLocalMissing, localPath)
	}
	dest := s.ResultsURL(key)
	s.logger.Log(ctx, logging.LevelInfo, "uploading file", logging.String("path", localPath), logging.String("destination", dest))
	ok, output := s.runner.Run(ctx, "s3", "cp", localPath, dest)
	if !ok {
		return s.failed(ctx, "upload "+localPath, output)
	}
	return nil
}

// UploadDirectory syncs localDir to prefix.
func (s *S3) UploadDirectory(ctx context.Context, localDir, prefix string) error {
	info, err := os.Stat(localDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrLocalMissing, localDir)
	}
	dest := s.ResultsURL(prefix)
	s.logger.Log(ctx, logging.LevelInfo, "syncing directory", logging.String("path", localDir), logging.String("destination", dest))
	ok, output := s.runner.Run(ctx, "s3", "sync", localDir, dest)
	if !ok {
		return s.failed(ctx, "sync "+localDir, output)
	}
	return nil
}

// ResultsURL returns the s3:// URL of prefix inside the bucket.
func (s *S3) ResultsURL(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + prefix
}

// WorkflowKey returns the date-organized prefix for a run's results:
// results/YYYY/MM/DD/run-<id>-HH-MM-SS.
func (s *S3) WorkflowKey(runID string) string {
	ts := s.now()
	return fmt.Sprintf("results/%s/run-%s-%s", ts.Format("2006/01/02"), runID, ts.Format("15-04-05"))
}

// UploadWorkflowResults writes metadata (with s3_location added) into
// resultDir when metadata is non-nil, syncs the directory and returns the
// results URL.
func (s *S3) UploadWorkflowResults(ctx context.Context, resultDir, runID string, metadata map[string]any) (string, error) {
	key := s.WorkflowKey(runID)
	url := s.ResultsURL(key)
	if metadata != nil {
		doc := make(map[string]any, len(metadata)+1)
		for k, v := range metadata {
			doc[k] = v
		}
		doc["s3_location"] = url
		if err := fileutil.WriteJSONAtomic(filepath.Join(resultDir, MetadataFile), doc); err != nil {
			return "", fmt.Errorf("write upload metadata: %w", err)
		}
	}
	if err := s.UploadDirectory(ctx, resultDir, key); err != nil {
		return "", err
	}
	s.logger.Log(ctx, logging.LevelInfo, "results available", logging.String("url", url))
	return url, nil
}

func (s *S3) failed(ctx context.Context, action, output string) error {
	s.logger.Log(ctx, logging.LevelError, "storage command failed",
		logging.String("action", action),
		logging.String("output", output),
	)
	return fmt.Errorf("%w: %s: %s", ErrCommand, action, output)
}
