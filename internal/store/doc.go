// Package store persists communications, the minimal case/client registry,
// and the analysis cache key-value table in SQLite.
//
// Ingestion is idempotent: every communication is inserted with
// ON CONFLICT(hash) DO NOTHING, so re-fetching a publication is a counted
// skip rather than an error. New rows are linked to a registered case by
// normalized case number, and manual links propagate to unlinked siblings
// sharing that case number without overwriting existing links.
//
// The schema is managed by goose migrations embedded in the binary. Writes go
// through a busy-retry helper because the watch daemon and CLI may share the
// database file.
package store
