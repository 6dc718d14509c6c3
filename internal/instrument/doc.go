// Package instrument tracks which instruments are streamed and what their
// pricing conventions are.
//
// Registry is the single source of truth for the active set. Every mutation
// is confirmed to a Responder (the control response list in production) and
// announced to subscribers, so the stream connector can resubscribe and the
// backfill dispatcher can fetch history for new instruments.
//
// MetadataCache resolves display precision and pip scale per instrument,
// loading provider metadata lazily and falling back to defaults.
package instrument
