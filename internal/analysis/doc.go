// Package analysis caches classified case timelines and the AI summaries
// attached to them.
//
// A Service keeps one Entry per case number in memory, mirrored to a
// durable KV store. An entry records the hash of its newest event, which is
// compared against the directory's newest item to detect staleness, and the
// set of hashes that already received an AI summary so no event is paid for
// twice. Passes over the same case number are serialized by a keyed mutex;
// different case numbers run independently.
package analysis
