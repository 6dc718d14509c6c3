// Package backfill fetches recent historical candles per instrument,
// normalizes them and publishes them in chronological order.
//
// Instruments are processed concurrently up to Config.Concurrency; rows of
// one instrument are always published in order by a single goroutine.
// A failure for one instrument is logged and does not affect the others.
package backfill
