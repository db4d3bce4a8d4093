// Package services defines shared utilities consumed by the fetch, storage,
// and analysis components.
//
// Key responsibilities:
//   - Context helpers that stamp case numbers, operation names, and
//     correlation identifiers for logging.
//   - Structured error markers (rate limited, upstream, invalid filter,
//     analysis unavailable, persistence) plus the Wrap helper, so callers can
//     branch with errors.Is regardless of which layer failed.
package services
