package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags where a Tick came from.
type Source string

const (
	SourceLive       Source = "live"
	SourceHistorical Source = "historical"
)

// Default instrument conventions used when metadata lookup fails.
const (
	DefaultDisplayPrecision = 5
	DefaultPipScale         = 10000
)

// TimestampLayout is the wire format for published timestamps: local wall
// clock in the reference zone, microsecond precision, no offset.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Tick is one normalized price observation. Ticks are values; nothing in the
// pipeline mutates one after construction.
type Tick struct {
	Instrument string    // Provider symbol (e.g., "EUR_USD")
	Timestamp  time.Time // Capture time (live) or candle time (historical), reference zone

	Bid        decimal.NullDecimal // Best bid, rounded to display precision
	Ask        decimal.NullDecimal // Best ask, rounded to display precision
	Mid        decimal.NullDecimal // Provider mid or (bid+ask)/2; published as "price"
	SpreadPips decimal.NullDecimal // (ask-bid) * pip scale, 1 decimal

	Tradeable bool
	Source    Source

	ProviderTime string // Raw provider event time, informational only
	Candle       *OHLC  // Resolved candle prices (historical only)
}

// FormattedTimestamp renders the timestamp in TimestampLayout.
func (t Tick) FormattedTimestamp() string {
	return t.Timestamp.Format(TimestampLayout)
}

// OHLC holds the resolved open/high/low/close of one candle. A field is
// invalid when neither the mid block nor either leg supplied it.
type OHLC struct {
	Open  decimal.NullDecimal
	High  decimal.NullDecimal
	Low   decimal.NullDecimal
	Close decimal.NullDecimal
}

// -----------------------------------------------------------------------------
// Reference Types
// -----------------------------------------------------------------------------

// InstrumentSpec carries the provider conventions for one instrument.
type InstrumentSpec struct {
	Name             string
	DisplayPrecision int             // Decimal places for prices
	PipScale         decimal.Decimal // Multiplier turning a price delta into pips
}

// DefaultSpec returns the fallback conventions for an instrument.
func DefaultSpec(name string) InstrumentSpec {
	return InstrumentSpec{
		Name:             name,
		DisplayPrecision: DefaultDisplayPrecision,
		PipScale:         decimal.NewFromInt(DefaultPipScale),
	}
}

// PipScaleFromLocation converts a provider pip location (e.g., -4) into a
// scale (10000).
func PipScaleFromLocation(location int) decimal.Decimal {
	if location > 0 {
		location = -location
	}
	return decimal.New(1, int32(-location))
}
