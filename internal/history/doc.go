// Package history keeps a SQLite index of persisted run summaries: one row
// per summary file with its identity, timing and worst health status. It
// lets the CLI list past runs without scanning result directories.
package history
