// Command runwatch wraps workflow runs with structured logs, operation
// timing, health checks and an end-of-run summary.
//
// Typical CI usage:
//
//	runwatch run --run-id "$GITHUB_RUN_ID" --commit "$GITHUB_SHA" -- make test
//	runwatch health --json
//	runwatch summary show results
//
// Configuration is read from --config, ~/.config/runwatch/config.toml or
// ./runwatch.toml, in that order; `runwatch config init` writes a sample.
package main
