// Package monitor layers run-level observability on top of a logging.Emitter.
//
// A Monitor owns one workflow run: it classifies operation durations against
// a threshold table, aggregates independent health probes into snapshots,
// tracks and escalates application errors, and persists an end-of-run
// summary to monitoring_summary.json. None of these steps fail the caller's
// workflow; internal faults degrade to logged statuses.
package monitor
