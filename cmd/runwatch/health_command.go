package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runwatch/internal/deps"
	"runwatch/internal/monitor"
	"runwatch/internal/preflight"
)

type healthReport struct {
	Health       monitor.Snapshot   `json:"health" yaml:"health"`
	Worst        monitor.Status     `json:"worst" yaml:"worst"`
	Dependencies []deps.Status      `json:"dependencies" yaml:"dependencies"`
	Preflight    []preflight.Result `json:"preflight" yaml:"preflight"`
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var formats formatFlags

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run the health probes once and print the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formats.format()
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rt, err := newRunEnv(cfg, runEnvOptions{quiet: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			report := healthReport{
				Health:       rt.monitor.HealthCheck(cmd.Context()),
				Dependencies: deps.CheckBinaries(cmd.Context(), deps.StorageRequirements(cfg.Storage.CLI)),
			}
			report.Worst = report.Health.Worst()
			report.Preflight = preflight.RunAll(cmd.Context(), cfg)

			if format != formatTable {
				return writeStructured(cmd, format, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			renderSnapshot(out, report.Health, colorize)
			fmt.Fprintln(out)
			rows := make([][]string, 0, len(report.Dependencies))
			for _, dep := range report.Dependencies {
				detail := dep.Version
				if detail == "" {
					detail = dep.Detail
				}
				rows = append(rows, []string{dep.Name, dep.Command, yesNo(dep.Available), detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Available", "Detail"}, rows, nil))
			fmt.Fprintln(out)
			rows = rows[:0]
			for _, result := range report.Preflight {
				rows = append(rows, []string{result.Name, yesNo(result.Passed), result.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Preflight", "Passed", "Detail"}, rows, nil))
			return nil
		},
	}
	formats.register(cmd)
	return cmd
}
