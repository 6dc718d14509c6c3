// Package normalize converts provider stream events and candle rows into
// model.Tick values.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/price-streamer/internal/api"
	"github.com/rickgao/price-streamer/internal/model"
)

var two = decimal.NewFromInt(2)

// Normalizer builds Ticks in a fixed reference zone.
type Normalizer struct {
	zone *time.Location
	now  func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the capture clock used for live ticks.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer. A nil zone means UTC.
func New(zone *time.Location, opts ...Option) *Normalizer {
	if zone == nil {
		zone = time.UTC
	}
	n := &Normalizer{
		zone: zone,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Zone returns the reference zone.
func (n *Normalizer) Zone() *time.Location {
	return n.zone
}

// FromPrice normalizes a live PRICE event. The timestamp is the capture
// instant, not the provider time.
func (n *Normalizer) FromPrice(msg *api.PriceMessage, spec model.InstrumentSpec) (model.Tick, error) {
	if msg == nil {
		return model.Tick{}, fmt.Errorf("nil price: %w", model.ErrMalformedPayload)
	}
	if msg.Instrument == "" {
		return model.Tick{}, fmt.Errorf("price without instrument: %w", model.ErrMalformedPayload)
	}
	if len(msg.Bids) == 0 || len(msg.Asks) == 0 {
		return model.Tick{}, fmt.Errorf("price %s missing bids or asks: %w", msg.Instrument, model.ErrMalformedPayload)
	}

	bid, err := parsePrice(msg.Bids[0].Price)
	if err != nil {
		return model.Tick{}, fmt.Errorf("price %s bid: %w", msg.Instrument, err)
	}
	ask, err := parsePrice(msg.Asks[0].Price)
	if err != nil {
		return model.Tick{}, fmt.Errorf("price %s ask: %w", msg.Instrument, err)
	}
	if !bid.Valid || !ask.Valid {
		return model.Tick{}, fmt.Errorf("price %s empty bid or ask: %w", msg.Instrument, model.ErrMalformedPayload)
	}

	places := int32(spec.DisplayPrecision)
	bid = round(bid, places)
	ask = round(ask, places)

	return model.Tick{
		Instrument:   msg.Instrument,
		Timestamp:    n.localize(n.now()),
		Bid:          bid,
		Ask:          ask,
		Mid:          round(mean(bid, ask), places),
		SpreadPips:   spread(bid, ask, spec.PipScale),
		Tradeable:    msg.IsTradeable(),
		Source:       model.SourceLive,
		ProviderTime: msg.Time,
	}, nil
}

// FromCandle normalizes one historical candle row. The mid block wins when
// present; otherwise each OHLC field is the average of the bid and ask legs,
// or whichever leg exists.
func (n *Normalizer) FromCandle(instrument string, c api.Candle, spec model.InstrumentSpec) (model.Tick, error) {
	if c.Mid == nil && c.Bid == nil && c.Ask == nil {
		return model.Tick{}, fmt.Errorf("candle %s %s has no price block: %w", instrument, c.Time, model.ErrMalformedPayload)
	}

	ts, err := time.Parse(time.RFC3339Nano, c.Time)
	if err != nil {
		return model.Tick{}, fmt.Errorf("candle %s time %q: %w", instrument, c.Time, model.ErrMalformedPayload)
	}

	bidLeg, err := parseOHLC(c.Bid)
	if err != nil {
		return model.Tick{}, fmt.Errorf("candle %s bid: %w", instrument, err)
	}
	askLeg, err := parseOHLC(c.Ask)
	if err != nil {
		return model.Tick{}, fmt.Errorf("candle %s ask: %w", instrument, err)
	}

	var ohlc model.OHLC
	if c.Mid != nil {
		if ohlc, err = parseOHLC(c.Mid); err != nil {
			return model.Tick{}, fmt.Errorf("candle %s mid: %w", instrument, err)
		}
	} else {
		ohlc = model.OHLC{
			Open:  mean(bidLeg.Open, askLeg.Open),
			High:  mean(bidLeg.High, askLeg.High),
			Low:   mean(bidLeg.Low, askLeg.Low),
			Close: mean(bidLeg.Close, askLeg.Close),
		}
	}

	places := int32(spec.DisplayPrecision)
	ohlc = model.OHLC{
		Open:  round(ohlc.Open, places),
		High:  round(ohlc.High, places),
		Low:   round(ohlc.Low, places),
		Close: round(ohlc.Close, places),
	}

	bid := round(firstValid(bidLeg.Close, ohlc.Close), places)
	ask := round(firstValid(askLeg.Close, ohlc.Close), places)

	return model.Tick{
		Instrument:   instrument,
		Timestamp:    n.localize(ts),
		Bid:          bid,
		Ask:          ask,
		Mid:          ohlc.Close,
		SpreadPips:   spread(bid, ask, spec.PipScale),
		Tradeable:    true,
		Source:       model.SourceHistorical,
		ProviderTime: c.Time,
		Candle:       &ohlc,
	}, nil
}

func (n *Normalizer) localize(t time.Time) time.Time {
	return t.In(n.zone).Truncate(time.Microsecond)
}

// parsePrice parses a decimal string. Empty means absent, not malformed.
func parsePrice(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse price %q: %w", s, model.ErrMalformedPayload)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseOHLC(b *api.CandleOHLC) (model.OHLC, error) {
	if b == nil {
		return model.OHLC{}, nil
	}
	var (
		out model.OHLC
		err error
	)
	if out.Open, err = parsePrice(b.O); err != nil {
		return out, err
	}
	if out.High, err = parsePrice(b.H); err != nil {
		return out, err
	}
	if out.Low, err = parsePrice(b.L); err != nil {
		return out, err
	}
	if out.Close, err = parsePrice(b.C); err != nil {
		return out, err
	}
	return out, nil
}

// mean averages two optional values; a single valid value is returned as is.
func mean(a, b decimal.NullDecimal) decimal.NullDecimal {
	switch {
	case a.Valid && b.Valid:
		return decimal.NewNullDecimal(a.Decimal.Add(b.Decimal).Div(two))
	case a.Valid:
		return a
	default:
		return b
	}
}

func firstValid(a, b decimal.NullDecimal) decimal.NullDecimal {
	if a.Valid {
		return a
	}
	return b
}

// round rounds half away from zero.
func round(d decimal.NullDecimal, places int32) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(places))
}

// spread returns (ask-bid) * scale at one decimal place.
func spread(bid, ask decimal.NullDecimal, scale decimal.Decimal) decimal.NullDecimal {
	if !bid.Valid || !ask.Valid {
		return decimal.NullDecimal{}
	}
	if scale.IsZero() {
		scale = decimal.NewFromInt(model.DefaultPipScale)
	}
	return decimal.NewNullDecimal(ask.Decimal.Sub(bid.Decimal).Mul(scale).Round(1))
}
