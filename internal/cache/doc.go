// Package cache is the Redis-backed store for published ticks and the
// control lists.
//
// Connection-level failures are wrapped with model.ErrCacheUnavailable so
// callers can decide to Reconnect; command errors are returned as is.
package cache
