// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Ticks published by source, suppressed duplicates, malformed events
//   - Stream state, heartbeats and reconnects
//   - Cache write failures and reconnects
//   - Active instrument count and archive queue drops
//
// Server exposes /health, /metrics and /debug/instruments over HTTP.
package metrics
