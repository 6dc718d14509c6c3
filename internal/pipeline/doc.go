// Package pipeline wires the streamer's components into one service.
//
// Startup order:
//  1. Sweep stale keys under the cache prefix (optional)
//  2. Start the tick archive (optional)
//  3. Backfill historical candles for the active instruments
//  4. Run the stream connector alongside the supervisor, the control
//     listener, the add-backfill dispatcher and any HTTP servers
//
// The connector ending for any reason stops the other goroutines.
package pipeline
