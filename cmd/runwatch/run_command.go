package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"runwatch/internal/config"
	"runwatch/internal/fileutil"
	"runwatch/internal/logging"
	"runwatch/internal/monitor"
	"runwatch/internal/preflight"
)

const (
	kindCommandFailed = "command_failed"
	kindUploadFailed  = "s3_upload_failed"
)

type runOptions struct {
	name      string
	runID     string
	commit    string
	resultDir string
	operation string
	upload    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command inside a monitored workflow run",
		Long: "Run wraps the command in a timed operation, records its duration and status " +
			"metrics, checks health and writes monitoring_summary.json. The command's exit " +
			"status is returned unchanged.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return executeRun(cmd, cfg, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Workflow name (defaults to [monitor].workflow_name)")
	cmd.Flags().StringVar(&opts.runID, "run-id", os.Getenv("GITHUB_RUN_ID"), "Workflow run identifier")
	cmd.Flags().StringVar(&opts.commit, "commit", os.Getenv("GITHUB_SHA"), "Commit SHA being tested")
	cmd.Flags().StringVar(&opts.resultDir, "result-dir", "", "Directory for the run summary (defaults to [paths].result_dir)")
	cmd.Flags().StringVar(&opts.operation, "operation", "", "Operation name for the command (defaults to the executable name)")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Upload the result directory to the configured bucket")
	return cmd
}

func executeRun(cmd *cobra.Command, cfg *config.Config, opts runOptions, args []string) error {
	resultDir := cfg.Paths.ResultDir
	if strings.TrimSpace(opts.resultDir) != "" {
		expanded, err := config.ExpandPath(opts.resultDir)
		if err != nil {
			return err
		}
		resultDir = expanded
	}
	operation := strings.TrimSpace(opts.operation)
	if operation == "" {
		operation = operationName(args[0])
	}

	rt, err := newRunEnv(cfg, runEnvOptions{name: opts.name, console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.housekeeping()

	m := rt.monitor
	runCtx := m.Start(cmd.Context(), opts.runID, opts.commit)
	for _, failed := range preflight.Failed(preflight.RunAll(runCtx, cfg)) {
		rt.emitter.Log(runCtx, logging.LevelWarning, "Preflight check failed: "+failed.Name, "detail", failed.Detail)
	}

	runErr := m.Operation(runCtx, operation, func(ctx context.Context) error {
		child := exec.CommandContext(ctx, args[0], args[1:]...)
		child.Stdin = cmd.InOrStdin()
		child.Stdout = cmd.OutOrStdout()
		child.Stderr = cmd.ErrOrStderr()
		return child.Run()
	})
	if runErr != nil {
		m.Tracker().TrackErr(runCtx, kindCommandFailed, runErr, map[string]any{
			"operation": operation,
			"command":   strings.Join(args, " "),
		})
	}

	summary, summaryErr := m.GenerateSummary(runCtx, resultDir)
	if opts.upload && summaryErr == nil {
		uploadResults(runCtx, rt, summary, resultDir, opts.runID)
	}

	return errors.Join(runErr, summaryErr)
}

// uploadResults pushes the result directory. Failures are tracked, never
// returned: the run's outcome is the wrapped command's.
func uploadResults(ctx context.Context, rt *runEnv, summary monitor.Summary, resultDir, runID string) {
	metadata := map[string]any{
		"workflow_name":    summary.WorkflowName,
		"workflow_run":     summary.WorkflowRun,
		"commit_sha":       summary.CommitSHA,
		"duration_seconds": summary.DurationSeconds,
	}
	collectRunLogs(ctx, rt, resultDir)
	err := rt.monitor.Operation(ctx, "s3_upload", func(ctx context.Context) error {
		if err := rt.storage.EnsureBucket(ctx); err != nil {
			return err
		}
		_, err := rt.storage.UploadWorkflowResults(ctx, resultDir, runIDOrLocal(runID), metadata)
		return err
	})
	if err != nil {
		rt.monitor.Tracker().TrackErr(ctx, kindUploadFailed, err, map[string]any{"bucket": rt.storage.Bucket()})
		return
	}
	rt.emitter.Log(ctx, logging.LevelInfo, "Results uploaded", "bucket", rt.storage.Bucket())
}

// collectRunLogs copies the run's day files into <resultDir>/logs so the
// upload carries them.
func collectRunLogs(ctx context.Context, rt *runEnv, resultDir string) {
	for _, path := range rt.logPaths() {
		dst := filepath.Join(resultDir, "logs", filepath.Base(path))
		if err := fileutil.CopyFileVerified(path, dst); err != nil {
			rt.emitter.Log(ctx, logging.LevelWarning, "Log copy failed", "file", path, logging.Error(err))
		}
	}
}

func operationName(command string) string {
	base := command
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, base)
	if base == "" {
		return "command"
	}
	return fmt.Sprintf("%s_execution", strings.ToLower(base))
}

func runIDOrLocal(runID string) string {
	if strings.TrimSpace(runID) == "" {
		return "local"
	}
	return runID
}
