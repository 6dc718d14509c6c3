// Package archive optionally persists published ticks to PostgreSQL or
// TimescaleDB.
//
// The cache only holds a short sliding window; the archive keeps history.
// TickWriter accepts ticks without blocking the publish path, batches them
// and writes with pgx.Batch. A full buffer drops ticks and counts them.
//
// Table:
//   - price_ticks: (instrument, source, ts) unique, bid/ask/mid/spread_pips numeric
package archive
