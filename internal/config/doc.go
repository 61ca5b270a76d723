// Package config loads, normalizes, and validates runwatch configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// RUNWATCH_LOG_DIR and AWS_DEFAULT_REGION. The threshold table, sink levels
// and probe settings all live here so the CLI and embedding programs build
// monitors from one sanitized value.
package config
