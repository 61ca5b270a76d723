// Package preflight provides readiness checks for the paths and tools a
// monitored run writes to or shells out to.
//
// `runwatch run` calls RunAll before starting the wrapped command and logs
// each failure as a warning; the run proceeds regardless since monitoring
// must never be the reason a workflow fails. `runwatch health` prints the
// same results beside the health snapshot.
package preflight
