package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"runwatch/internal/config"
	"runwatch/internal/logging"
	"runwatch/internal/logs"
)

type logsOptions struct {
	name   string
	file   string
	level  string
	grep   string
	limit  int
	follow bool
	json   bool
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show records from the newest JSON log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if opts.follow {
				return followTextLog(cmd, cfg, opts)
			}
			return showJSONLog(cmd, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Logger name (defaults to [monitor].workflow_name)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Read this log file instead of the newest one")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug, info, warning, error)")
	cmd.Flags().StringVar(&opts.grep, "grep", "", "Only records whose message or context contains this text")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "Show only the last N matching records (0 for all)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow the plain-text log")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print matching records as JSON")

	cmd.AddCommand(newLogsPruneCommand(ctx))
	return cmd
}

func (o logsOptions) loggerName(cfg *config.Config) string {
	if name := strings.TrimSpace(o.name); name != "" {
		return name
	}
	return cfg.Monitor.WorkflowName
}

func showJSONLog(cmd *cobra.Command, cfg *config.Config, opts logsOptions) error {
	path := strings.TrimSpace(opts.file)
	if path == "" {
		latest, err := logs.LatestLog(cfg.Paths.LogDir, opts.loggerName(cfg), ".json")
		if err != nil {
			return err
		}
		path = latest
	}
	result, err := logs.ReadJSON(path, logs.Filter{MinLevel: opts.level, Contains: opts.grep, Limit: opts.limit})
	if err != nil {
		return err
	}
	if opts.json {
		entries := result.Entries
		if entries == nil {
			entries = []logs.Entry{}
		}
		return writeJSON(cmd, entries)
	}

	out := cmd.OutOrStdout()
	for _, entry := range result.Entries {
		fmt.Fprintf(out, "%s %-7s %s\n", entry.Timestamp, entry.Level, entry.Message)
	}
	if result.Skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d malformed line(s) in %s\n", result.Skipped, path)
	}
	return nil
}

func followTextLog(cmd *cobra.Command, cfg *config.Config, opts logsOptions) error {
	path := strings.TrimSpace(opts.file)
	if path == "" {
		path, _ = logging.LogFilePaths(cfg.Paths.LogDir, opts.loggerName(cfg), time.Now())
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: max(opts.limit, 1)})
	if err != nil {
		return err
	}
	for {
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
		}
		if ctx.Err() != nil {
			return nil
		}
		result, err = logs.Tail(ctx, path, logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func newLogsPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Compress and delete old daily log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			emitter := logging.NewWithSinks("runwatch", logging.LevelInfo, logging.NewConsoleSink(cmd.ErrOrStderr(), logging.LevelInfo))
			compressed := logging.CompressOldLogs(emitter, cfg.Paths.LogDir, cfg.Logging.CompressAfterDays)
			removed := logging.CleanupOldLogs(emitter, cfg.Logging.RetentionDays, logging.DailyLogTargets(cfg.Paths.LogDir)...)
			fmt.Fprintf(cmd.OutOrStdout(), "Compressed %d file(s), removed %d file(s)\n", len(compressed), len(removed))
			return nil
		},
	}
}
