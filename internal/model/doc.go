// Package model defines shared data types used across the price streamer.
//
// Conventions:
//   - Prices: shopspring decimal values rounded to the instrument's display precision
//   - Timestamps: time.Time in the configured reference zone, microsecond resolution
//   - Instruments: provider symbols such as "EUR_USD"
package model
