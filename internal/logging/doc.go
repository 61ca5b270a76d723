// Package logging provides the run-scoped structured logger used by runwatch.
//
// An Emitter owns one logger name, a severity floor and a fixed, ordered set
// of sinks: a concise console sink, a detailed plain-text day file and a
// JSON-lines day file. Each record fans out to every sink whose minimum
// level admits it; a failing sink never blocks the others and is reported
// through SinkFailures, LastSinkError and Options.OnSinkError.
//
// WithSpan and Emitter.Time wrap timed operations with guaranteed start and
// end records, and Emitter.Metric renders numeric observations as records
// tagged with record_type=metric.
package logging
