package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"runwatch/internal/config"
	"runwatch/internal/monitor"
)

func newSummaryCommand(ctx *commandContext) *cobra.Command {
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Inspect run summaries",
	}
	summaryCmd.AddCommand(newSummaryShowCommand(ctx))
	return summaryCmd
}

func newSummaryShowCommand(ctx *commandContext) *cobra.Command {
	var formats formatFlags

	cmd := &cobra.Command{
		Use:   "show [result-dir|summary-file]",
		Short: "Print a monitoring_summary.json",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formats.format()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target := cfg.Paths.ResultDir
			if len(args) == 1 {
				if target, err = config.ExpandPath(args[0]); err != nil {
					return err
				}
			}
			summary, err := monitor.ReadSummary(summaryPathFor(target))
			if err != nil {
				return err
			}
			if format != formatTable {
				return writeStructured(cmd, format, summary)
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Workflow", summary.WorkflowName},
				{"Run", valueOrDash(summary.WorkflowRun)},
				{"Commit", valueOrDash(summary.CommitSHA)},
				{"Started", summary.StartTime.Format(time.RFC3339)},
				{"Ended", summary.EndTime.Format(time.RFC3339)},
				{"Duration", fmt.Sprintf("%.2fs", summary.DurationSeconds)},
			}
			kinds := make([]string, 0, len(summary.ErrorCounts))
			for kind := range summary.ErrorCounts {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				rows = append(rows, []string{"Errors: " + kind, fmt.Sprint(summary.ErrorCounts[kind])})
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
			renderSnapshot(out, summary.Health, shouldColorize(out))
			return nil
		},
	}
	formats.register(cmd)
	return cmd
}

// summaryPathFor accepts either a result directory or the summary file.
func summaryPathFor(target string) string {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return target
	}
	return monitor.SummaryPath(target)
}

func valueOrDash(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	return *value
}
