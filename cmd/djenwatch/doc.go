// Package main hosts the djenwatch CLI entrypoint and command graph.
//
// The Cobra command tree covers one-off directory queries, the case and
// client registry, communication triage (read, link, unlink), case
// timelines with stage inference and AI summaries, the analysis cache, and
// the long-running watch loop with its HTTP surface. Configuration loading,
// logger setup and service wiring live in context.go so subcommands only
// describe user-facing behavior.
//
// Add functionality in the internal packages first, then surface it here.
package main
