// Package sink serializes Ticks and writes them to the cache with a TTL.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/price-streamer/internal/metrics"
	"github.com/rickgao/price-streamer/internal/model"
)

// Store is the cache write surface the Publisher needs.
type Store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Reconnect(ctx context.Context) error
}

// Tap receives a copy of every published tick. Enqueue must not block.
type Tap interface {
	Enqueue(tick model.Tick) bool
}

// Config holds publisher settings.
type Config struct {
	KeyPrefix     string        // e.g., "prices:"
	LiveTTL       time.Duration // TTL for source=live
	HistoricalTTL time.Duration // TTL for source=historical
}

// Stats tracks publisher statistics.
type Stats struct {
	Published  int64
	Failed     int64
	Reconnects int64
}

// Publisher writes Ticks to a Store.
type Publisher struct {
	store   Store
	cfg     Config
	tap     Tap
	metrics *metrics.Metrics
	logger  *slog.Logger

	published  atomic.Int64
	failed     atomic.Int64
	reconnects atomic.Int64
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTap mirrors published ticks to tap.
func WithTap(tap Tap) Option {
	return func(p *Publisher) {
		p.tap = tap
	}
}

// WithMetrics records publish outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a Publisher.
func NewPublisher(store Store, cfg Config, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "sink"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes one tick. A write failing with ErrCacheUnavailable triggers
// one reconnect and one retry; the second failure is returned.
func (p *Publisher) Publish(ctx context.Context, tick model.Tick) error {
	value, err := Encode(tick)
	if err != nil {
		p.fail()
		return err
	}

	key := Key(p.cfg.KeyPrefix, tick.Instrument)
	ttl := p.ttlFor(tick.Source)

	err = p.store.SetWithTTL(ctx, key, value, ttl)
	if errors.Is(err, model.ErrCacheUnavailable) {
		p.logger.Warn("cache unavailable, reconnecting", "instrument", tick.Instrument, "error", err)
		p.reconnects.Add(1)
		p.metrics.CacheReconnected()

		if rerr := p.store.Reconnect(ctx); rerr != nil {
			p.fail()
			return fmt.Errorf("publish %s: reconnect: %w", tick.Instrument, rerr)
		}
		err = p.store.SetWithTTL(ctx, key, value, ttl)
	}
	if err != nil {
		p.fail()
		return fmt.Errorf("publish %s: %w", tick.Instrument, err)
	}

	p.published.Add(1)
	p.metrics.TickPublished(string(tick.Source))

	if p.tap != nil && !p.tap.Enqueue(tick) {
		p.metrics.ArchiveDrop()
	}

	return nil
}

// Stats returns current statistics.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published:  p.published.Load(),
		Failed:     p.failed.Load(),
		Reconnects: p.reconnects.Load(),
	}
}

func (p *Publisher) fail() {
	p.failed.Add(1)
	p.metrics.PublishFailed()
}

func (p *Publisher) ttlFor(source model.Source) time.Duration {
	if source == model.SourceHistorical {
		return p.cfg.HistoricalTTL
	}
	return p.cfg.LiveTTL
}

// Key returns a unique cache key for one tick: prefix + instrument + ":" + uuid.
func Key(prefix, instrument string) string {
	return prefix + instrument + ":" + uuid.NewString()
}

// Value is the published JSON shape.
type Value struct {
	Timestamp  string       `json:"timestamp"`
	Instrument string       `json:"instrument"`
	Price      *float64     `json:"price"`
	Bid        *float64     `json:"bid"`
	Ask        *float64     `json:"ask"`
	SpreadPips *json.Number `json:"spread_pips"` // Always one decimal place, e.g. 1.0
	Source     string       `json:"source"`
	Tradeable  bool         `json:"tradeable"`
}

// Encode serializes a tick. Invalid numeric fields become null.
func Encode(tick model.Tick) ([]byte, error) {
	v := Value{
		Timestamp:  tick.FormattedTimestamp(),
		Instrument: tick.Instrument,
		Price:      toFloat(tick.Mid),
		Bid:        toFloat(tick.Bid),
		Ask:        toFloat(tick.Ask),
		SpreadPips: toFixed(tick.SpreadPips, 1),
		Source:     string(tick.Source),
		Tradeable:  tick.Tradeable,
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tick %s: %w", tick.Instrument, err)
	}
	return data, nil
}

func toFixed(d decimal.NullDecimal, places int32) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.StringFixed(places))
	return &n
}

func toFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}
