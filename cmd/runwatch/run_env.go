package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"

	"runwatch/internal/config"
	"runwatch/internal/history"
	"runwatch/internal/logging"
	"runwatch/internal/monitor"
	"runwatch/internal/storage"
	"runwatch/internal/telemetry"
)

// runEnv is everything one monitored run needs, built from config.
type runEnv struct {
	cfg     *config.Config
	emitter *logging.Emitter
	monitor *monitor.Monitor
	storage *storage.S3
	metrics *telemetry.PromObserver
	history *history.Store
}

type runEnvOptions struct {
	name    string
	console io.Writer
	// quiet drops the console sink; file sinks are still written.
	quiet bool
}

func newRunEnv(cfg *config.Config, opts runEnvOptions) (*runEnv, error) {
	name := strings.TrimSpace(opts.name)
	if name == "" {
		name = cfg.Monitor.WorkflowName
	}

	prom := telemetry.NewPromObserver(cfg.Metrics.Namespace)
	emitter, err := logging.New(name, logging.Options{
		Floor: cfg.Logging.Floor,
		Sinks: logging.SinkOptions{
			Dir:            cfg.Paths.LogDir,
			ConsoleLevel:   cfg.Logging.ConsoleLevel,
			FileLevel:      cfg.Logging.FileLevel,
			JSONLevel:      cfg.Logging.JSONLevel,
			Console:        opts.console,
			DisableConsole: opts.quiet,
		},
		Tracer:    telemetry.Tracer(otel.GetTracerProvider()),
		Observers: []logging.MetricObserver{prom, telemetry.NewOTelObserver(otel.GetMeterProvider())},
	})
	if err != nil {
		return nil, fmt.Errorf("open logs: %w", err)
	}

	runner := storage.NewExecRunner(cfg.Storage.CLI, cfg.CommandTimeout())
	s3 := storage.NewS3(runner, cfg.Storage.Bucket, cfg.Storage.Region, storage.WithLogger(emitter))

	rt := &runEnv{cfg: cfg, emitter: emitter, storage: s3, metrics: prom}

	var recorder monitor.HistoryRecorder
	if strings.TrimSpace(cfg.Paths.HistoryDB) != "" {
		store, err := history.Open(cfg.Paths.HistoryDB, history.WithLogger(emitter.Slog().With("component", "history")))
		if err != nil {
			emitter.Warn("history index unavailable; summaries will not be indexed", logging.Error(err))
		} else {
			rt.history = store
			recorder = store
		}
	}

	table := monitor.NewTable(cfg.Thresholds.DefaultSeconds, cfg.Thresholds.Operations)
	aggregator := monitor.NewAggregator(cfg.ProbeTimeout(),
		monitor.ReferenceProbes(cfg.Health.StoragePath, cfg.Health.MinFreePercent, cfg.Paths.LogDir, s3)...)

	monOpts := monitor.Options{
		WorkflowName:  name,
		Emitter:       emitter,
		Table:         &table,
		Aggregator:    aggregator,
		CriticalKinds: cfg.Monitor.CriticalKinds,
		History:       recorder,
	}
	if textfile := strings.TrimSpace(cfg.Metrics.Textfile); textfile != "" {
		monOpts.Metrics = prom
		monOpts.MetricsTextfile = textfile
	}
	rt.monitor = monitor.New(monOpts)
	return rt, nil
}

// logPaths returns the files behind the emitter's file sinks.
func (r *runEnv) logPaths() []string {
	sinks := r.emitter.Sinks()
	paths := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		if p, ok := sink.(interface{ Path() string }); ok && p.Path() != "" {
			paths = append(paths, p.Path())
		}
	}
	return paths
}

// housekeeping compresses and prunes old day files, leaving today's alone.
func (r *runEnv) housekeeping() {
	exclude := r.logPaths()
	logging.CompressOldLogs(r.emitter, r.cfg.Paths.LogDir, r.cfg.Logging.CompressAfterDays, exclude...)
	logging.CleanupOldLogs(r.emitter, r.cfg.Logging.RetentionDays, logging.DailyLogTargets(r.cfg.Paths.LogDir, exclude...)...)
}

func (r *runEnv) Close() error {
	var errs []error
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if err := r.monitor.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
