package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"runwatch/internal/config"
	"runwatch/internal/logging"
)

func newDemoCommand(ctx *commandContext) *cobra.Command {
	var resultDir string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Exercise spans, thresholds, health and summary end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := resultDir
			if dir == "" {
				dir = "test-results"
			}
			if dir, err = config.ExpandPath(dir); err != nil {
				return err
			}

			rt, err := newRunEnv(cfg, runEnvOptions{console: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer rt.Close()

			m := rt.monitor
			runCtx := m.Start(cmd.Context(), "999", "abc123")
			err = m.Operation(runCtx, "test_operation", func(ctx context.Context) error {
				select {
				case <-time.After(duration):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil {
				return err
			}
			decision := m.Table().Classify("test_operation", duration.Seconds())
			rt.emitter.Log(runCtx, logging.LevelInfo, "Threshold check",
				logging.FieldOperation, "test_operation",
				"within_budget", decision.WithinBudget,
				"threshold", decision.Threshold,
			)
			m.HealthCheck(runCtx)
			summary, err := m.GenerateSummary(runCtx, dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Summary written to %s\n", summaryPathFor(dir))
			fmt.Fprintf(out, "Duration: %.2fs, worst health: %s\n", summary.DurationSeconds, summary.Health.Worst())
			return nil
		},
	}
	cmd.Flags().StringVar(&resultDir, "result-dir", "", "Directory for the demo summary (default test-results)")
	cmd.Flags().DurationVar(&duration, "duration", time.Second, "How long the demo operation runs")
	return cmd
}
