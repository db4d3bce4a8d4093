// Package ingest drives the sync workflow that keeps the local store current
// with the judicial communication directory.
//
// A Syncer pass fetches the recent communications of every registered case
// (and, when configured, of the monitored advocate), saves them with
// auto-linking, refreshes the analysis cache for cases that received new
// communications, re-infers their procedural stage, and emits notifications.
// Watch repeats passes on an interval while holding an exclusive file lock so
// only one watcher runs per data directory.
package ingest
