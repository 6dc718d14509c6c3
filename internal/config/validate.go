package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // reference zone must resolve on hosts without zoneinfo
)

// MaxBackfillRows is the provider's per-request candle limit.
const MaxBackfillRows = 5000

// supportedBrokers lists brokers with a provider implementation.
var supportedBrokers = map[string]bool{
	"oanda": true,
}

// Validate checks that all required fields are set and values are valid.
func (c *StreamerConfig) Validate() error {
	if !supportedBrokers[c.Broker] {
		return fmt.Errorf("broker %q is not supported", c.Broker)
	}

	if len(c.Instruments) == 0 {
		return errors.New("instruments must not be empty")
	}
	for i, inst := range c.Instruments {
		if strings.TrimSpace(inst) == "" {
			return fmt.Errorf("instruments[%d] is empty", i)
		}
	}

	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.API.StreamURL == "" {
		return errors.New("api.stream_url is required")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Redis.KeyPrefix == "" {
		return errors.New("redis.key_prefix is required")
	}

	if c.TTL.PriceData < time.Second {
		return fmt.Errorf("ttl.price_data must be >= 1s, got %v", c.TTL.PriceData)
	}
	if c.TTL.HistoricalData < time.Second {
		return fmt.Errorf("ttl.historical_price_data must be >= 1s, got %v", c.TTL.HistoricalData)
	}

	if c.Backfill.Rows < 1 || c.Backfill.Rows > MaxBackfillRows {
		return fmt.Errorf("backfill.rows must be between 1 and %d, got %d", MaxBackfillRows, c.Backfill.Rows)
	}
	if c.Backfill.Concurrency < 1 {
		return errors.New("backfill.concurrency must be >= 1")
	}

	if c.Stream.BackoffFactor < 1 {
		return fmt.Errorf("stream.backoff_factor must be >= 1, got %v", c.Stream.BackoffFactor)
	}
	if c.Stream.BackoffMax < c.Stream.BackoffBase {
		return fmt.Errorf("stream.backoff_max (%v) cannot be less than backoff_base (%v)", c.Stream.BackoffMax, c.Stream.BackoffBase)
	}
	if c.Stream.MaxAttempts < 0 {
		return errors.New("stream.max_attempts must be >= 0")
	}

	if _, err := time.LoadLocation(c.Pricing.ReferenceZone); err != nil {
		return fmt.Errorf("pricing.reference_zone: %w", err)
	}
	if c.Pricing.DefaultPrecision < 0 {
		return errors.New("pricing.default_precision must be >= 0")
	}
	for inst, scale := range c.Pricing.PipScales {
		if scale < 1 {
			return fmt.Errorf("pricing.pip_scales.%s must be >= 1, got %d", inst, scale)
		}
	}

	if c.Archive.Enabled {
		if err := c.Archive.validate("archive"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (a *ArchiveConfig) validate(prefix string) error {
	if a.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if a.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if a.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if a.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if a.MinConns > a.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, a.MinConns, a.MaxConns)
	}
	if a.BatchSize < 1 {
		return fmt.Errorf("%s.batch_size must be >= 1", prefix)
	}
	return nil
}
