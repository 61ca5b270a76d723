package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runwatch/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var workflow string
	var limit int
	var formats formatFlags

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List indexed run summaries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formats.format()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.Paths.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), workflow, limit)
			if err != nil {
				return err
			}
			if format != formatTable {
				if runs == nil {
					runs = []history.Run{}
				}
				return writeStructured(cmd, format, runs)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					fmt.Sprint(run.ID),
					run.WorkflowName,
					orDash(run.WorkflowRun),
					run.StartTime.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%.2f", run.DurationSeconds),
					run.WorstStatus,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Workflow", "Run", "Started", "Seconds", "Worst"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&workflow, "workflow", "", "Only show runs of this workflow")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "Maximum runs to show")
	formats.register(cmd)
	return cmd
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
