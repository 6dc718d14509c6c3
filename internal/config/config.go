package config

import "time"

// StreamerConfig is the root configuration for a price streamer instance.
type StreamerConfig struct {
	Broker      string           `yaml:"broker"`
	Instruments []string         `yaml:"instruments"`
	Log         LogConfig        `yaml:"log"`
	API         APIConfig        `yaml:"api"`
	Redis       RedisConfig      `yaml:"redis"`
	TTL         TTLConfig        `yaml:"ttl"`
	Backfill    BackfillConfig   `yaml:"backfill"`
	Stream      StreamConfig     `yaml:"stream"`
	Pricing     PricingConfig    `yaml:"pricing"`
	Startup     StartupConfig    `yaml:"startup"`
	Supervisor  SupervisorConfig `yaml:"supervisor"`
	Archive     ArchiveConfig    `yaml:"archive"`
	Metrics     MetricsConfig    `yaml:"metrics"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// APIConfig holds quote provider settings.
type APIConfig struct {
	RestURL         string        `yaml:"rest_url"`
	StreamURL       string        `yaml:"stream_url"`
	APIKey          string        `yaml:"api_key"`          // Bearer token
	AccountID       string        `yaml:"account_id"`       // Provider account for instrument/stream endpoints
	CredentialsFile string        `yaml:"credentials_file"` // Secrets JSON keyed by broker; overrides api_key/account_id
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
}

// RedisConfig holds the cache connection and key layout.
type RedisConfig struct {
	Addr               string        `yaml:"addr"`
	Password           string        `yaml:"password"`
	DB                 int           `yaml:"db"`
	KeyPrefix          string        `yaml:"key_prefix"`
	ResponseKey        string        `yaml:"response_key"` // Control confirmations (LPUSH)
	CommandKey         string        `yaml:"command_key"`  // Control commands (BRPOP)
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	ConnectAttempts    int           `yaml:"connect_attempts"`
	ConnectRetryDelay  time.Duration `yaml:"connect_retry_delay"`
	DisablePersistence bool          `yaml:"disable_persistence"`
}

// TTLConfig holds cache entry lifetimes.
type TTLConfig struct {
	PriceData      time.Duration `yaml:"price_data"`
	HistoricalData time.Duration `yaml:"historical_price_data"`
}

// BackfillConfig holds historical candle settings.
type BackfillConfig struct {
	Rows        int    `yaml:"rows"`
	Granularity string `yaml:"granularity"`
	Price       string `yaml:"price"` // Candle components: M, B, A or combinations
	OnAdd       *bool  `yaml:"on_add"` // Backfill instruments added at runtime (default true)
	Concurrency int    `yaml:"concurrency"`
}

// OnAddEnabled reports whether added instruments are backfilled.
func (b BackfillConfig) OnAddEnabled() bool {
	return b.OnAdd == nil || *b.OnAdd
}

// StreamConfig holds live stream connector settings.
type StreamConfig struct {
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	MaxAttempts       int           `yaml:"max_attempts"` // 0 = unbounded
	MaxDuration       time.Duration `yaml:"max_duration"` // 0 = unbounded
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	HeartbeatLogEvery int           `yaml:"heartbeat_log_every"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`
}

// PricingConfig holds normalization conventions.
type PricingConfig struct {
	ReferenceZone    string           `yaml:"reference_zone"`
	DefaultPrecision int              `yaml:"default_precision"`
	DefaultPipScale  int64            `yaml:"default_pip_scale"`
	PipScales        map[string]int64 `yaml:"pip_scales"` // Per-instrument override
}

// StartupConfig holds one-shot startup behaviour.
type StartupConfig struct {
	Sweep *bool `yaml:"sweep"` // Delete stale keys under the prefix (default true)
}

// SweepEnabled reports whether the startup sweep runs.
func (s StartupConfig) SweepEnabled() bool {
	return s.Sweep == nil || *s.Sweep
}

// SupervisorConfig holds the liveness loop settings.
type SupervisorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ArchiveConfig holds the optional TimescaleDB tick archive.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SSLMode       string        `yaml:"ssl_mode"`
	MaxConns      int           `yaml:"max_conns"`
	MinConns      int           `yaml:"min_conns"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
