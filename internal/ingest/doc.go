// Package ingest feeds records into batch extraction from outside the CLI.
//
// Two surfaces are provided:
//   - Watcher observes a spool directory with fsnotify and emits debounced
//     per-file events; dropped-in record files become extraction batches.
//   - Consumer subscribes to a NATS subject carrying record messages,
//     groups them by scope, and analyzes them in batches. Messages whose
//     batch keeps failing are retried with a counter header and end up on
//     a dead-letter subject.
//
// Rapid file events for the same path are coalesced before emission:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
package ingest
