package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBroker            = "oanda"
	DefaultInstrument        = "USD_CAD"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultRestURL           = "https://api-fxtrade.oanda.com"
	DefaultStreamURL         = "https://stream-fxtrade.oanda.com"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRedisAddr         = "localhost:6379"
	DefaultKeyPrefix         = "prices:"
	DefaultResponseKey       = "price_streamer_responses"
	DefaultCommandKey        = "price_streamer_commands"
	DefaultDialTimeout       = 5 * time.Second
	DefaultConnectAttempts   = 5
	DefaultConnectRetryDelay = 2 * time.Second
	DefaultPriceTTL          = 10 * time.Second
	DefaultHistoricalTTL     = 10 * time.Second
	DefaultBackfillRows      = 5000
	DefaultGranularity       = "S5"
	DefaultCandlePrice       = "BA"
	DefaultBackfillWorkers   = 4
	DefaultBackoffBase       = 5 * time.Second
	DefaultBackoffMax        = 60 * time.Second
	DefaultBackoffFactor     = 1.5
	DefaultReadTimeout       = 30 * time.Second
	DefaultHeartbeatLogEvery = 20
	DefaultPublishTimeout    = 5 * time.Second
	DefaultReferenceZone     = "America/New_York"
	DefaultPrecision         = 5
	DefaultPipScale          = 10000
	DefaultSupervisorEvery   = 30 * time.Second
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultArchiveBatchSize  = 500
	DefaultFlushInterval     = 1 * time.Second
	DefaultBufferSize        = 10000
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// ApplyDefaults fills zero-valued optional fields.
func (c *StreamerConfig) ApplyDefaults() {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if len(c.Instruments) == 0 {
		c.Instruments = []string{DefaultInstrument}
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.StreamURL == "" {
		c.API.StreamURL = DefaultStreamURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultKeyPrefix
	}
	if c.Redis.ResponseKey == "" {
		c.Redis.ResponseKey = DefaultResponseKey
	}
	if c.Redis.CommandKey == "" {
		c.Redis.CommandKey = DefaultCommandKey
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = DefaultDialTimeout
	}
	if c.Redis.ConnectAttempts == 0 {
		c.Redis.ConnectAttempts = DefaultConnectAttempts
	}
	if c.Redis.ConnectRetryDelay == 0 {
		c.Redis.ConnectRetryDelay = DefaultConnectRetryDelay
	}

	// TTL defaults
	if c.TTL.PriceData == 0 {
		c.TTL.PriceData = DefaultPriceTTL
	}
	if c.TTL.HistoricalData == 0 {
		c.TTL.HistoricalData = DefaultHistoricalTTL
	}

	// Backfill defaults
	if c.Backfill.Rows == 0 {
		c.Backfill.Rows = DefaultBackfillRows
	}
	if c.Backfill.Granularity == "" {
		c.Backfill.Granularity = DefaultGranularity
	}
	if c.Backfill.Price == "" {
		c.Backfill.Price = DefaultCandlePrice
	}
	if c.Backfill.Concurrency == 0 {
		c.Backfill.Concurrency = DefaultBackfillWorkers
	}

	// Stream defaults
	if c.Stream.BackoffBase == 0 {
		c.Stream.BackoffBase = DefaultBackoffBase
	}
	if c.Stream.BackoffMax == 0 {
		c.Stream.BackoffMax = DefaultBackoffMax
	}
	if c.Stream.BackoffFactor == 0 {
		c.Stream.BackoffFactor = DefaultBackoffFactor
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = DefaultReadTimeout
	}
	if c.Stream.HeartbeatLogEvery == 0 {
		c.Stream.HeartbeatLogEvery = DefaultHeartbeatLogEvery
	}
	if c.Stream.PublishTimeout == 0 {
		c.Stream.PublishTimeout = DefaultPublishTimeout
	}

	// Pricing defaults
	if c.Pricing.ReferenceZone == "" {
		c.Pricing.ReferenceZone = DefaultReferenceZone
	}
	if c.Pricing.DefaultPrecision == 0 {
		c.Pricing.DefaultPrecision = DefaultPrecision
	}
	if c.Pricing.DefaultPipScale == 0 {
		c.Pricing.DefaultPipScale = DefaultPipScale
	}

	if c.Supervisor.Interval == 0 {
		c.Supervisor.Interval = DefaultSupervisorEvery
	}

	// Archive defaults
	if c.Archive.Port == 0 {
		c.Archive.Port = DefaultDBPort
	}
	if c.Archive.SSLMode == "" {
		c.Archive.SSLMode = DefaultDBSSLMode
	}
	if c.Archive.MaxConns == 0 {
		c.Archive.MaxConns = DefaultMaxConns
	}
	if c.Archive.MinConns == 0 {
		c.Archive.MinConns = DefaultMinConns
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
