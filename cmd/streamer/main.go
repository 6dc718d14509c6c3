// streamer ingests live and historical prices from the quote provider,
// normalizes them and publishes them to Redis with a short TTL.
//
// Usage: go run ./cmd/streamer -config configs/streamer.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/price-streamer/internal/api"
	"github.com/rickgao/price-streamer/internal/archive"
	"github.com/rickgao/price-streamer/internal/auth"
	"github.com/rickgao/price-streamer/internal/backfill"
	"github.com/rickgao/price-streamer/internal/cache"
	"github.com/rickgao/price-streamer/internal/config"
	"github.com/rickgao/price-streamer/internal/control"
	"github.com/rickgao/price-streamer/internal/dedup"
	"github.com/rickgao/price-streamer/internal/instrument"
	"github.com/rickgao/price-streamer/internal/metrics"
	"github.com/rickgao/price-streamer/internal/normalize"
	"github.com/rickgao/price-streamer/internal/pipeline"
	"github.com/rickgao/price-streamer/internal/sink"
	"github.com/rickgao/price-streamer/internal/stream"
	"github.com/rickgao/price-streamer/internal/version"
)

func main() {
	if err := run(); err != nil {
		slog.Error("streamer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	broker := flag.String("broker", "", "quote provider (overrides config)")
	rows := flag.Int("rows", 0, "historical candles per instrument (overrides config)")
	ttl := flag.Duration("ttl", 0, "TTL for live and historical keys (overrides config)")
	granularity := flag.String("granularity", "", "historical candle granularity (overrides config)")
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, *broker, *rows, *ttl, *granularity)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting price streamer",
		"version", version.Version,
		"commit", version.Commit,
		"go", version.GoVersion(),
		"config", *configPath,
		"broker", cfg.Broker,
		"instruments", cfg.Instruments,
	)

	creds, err := loadCredentials(cfg)
	if err != nil {
		return err
	}

	zone, err := time.LoadLocation(cfg.Pricing.ReferenceZone)
	if err != nil {
		return fmt.Errorf("load reference zone %q: %w", cfg.Pricing.ReferenceZone, err)
	}

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := cache.Connect(ctx, cache.Config{
		Addr:               cfg.Redis.Addr,
		Password:           cfg.Redis.Password,
		DB:                 cfg.Redis.DB,
		DialTimeout:        cfg.Redis.DialTimeout,
		ConnectAttempts:    cfg.Redis.ConnectAttempts,
		ConnectRetryDelay:  cfg.Redis.ConnectRetryDelay,
		DisablePersistence: cfg.Redis.DisablePersistence,
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := api.NewClient(cfg.API.RestURL, cfg.API.StreamURL, creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	registry := instrument.NewRegistry(cfg.Instruments, control.NewListResponder(store, cfg.Redis.ResponseKey), logger)
	specs := instrument.NewMetadataCache(client, instrument.MetadataConfig{
		DefaultPrecision: cfg.Pricing.DefaultPrecision,
		DefaultPipScale:  cfg.Pricing.DefaultPipScale,
		PipScales:        cfg.Pricing.PipScales,
	}, logger)
	normalizer := normalize.New(zone)

	publisherOpts := []sink.Option{sink.WithMetrics(m)}

	var tickArchive pipeline.Archive
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Host,
			"port", cfg.Archive.Port,
			"database", cfg.Archive.Name,
		)
		pool, err := archive.Connect(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		defer pool.Close()

		if err := archive.EnsureSchema(ctx, pool, logger); err != nil {
			return err
		}

		writer := archive.NewTickWriter(archive.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, logger)
		publisherOpts = append(publisherOpts, sink.WithTap(writer))
		tickArchive = writer
	}

	publisher := sink.NewPublisher(store, sink.Config{
		KeyPrefix:     cfg.Redis.KeyPrefix,
		LiveTTL:       cfg.TTL.PriceData,
		HistoricalTTL: cfg.TTL.HistoricalData,
	}, logger, publisherOpts...)

	backfiller := backfill.New(backfill.Config{
		Rows:        cfg.Backfill.Rows,
		Granularity: cfg.Backfill.Granularity,
		Price:       cfg.Backfill.Price,
		Concurrency: cfg.Backfill.Concurrency,
	}, client, specs, normalizer, publisher, m, logger)

	connector := stream.NewConnector(stream.Config{
		BackoffBase:       cfg.Stream.BackoffBase,
		BackoffMax:        cfg.Stream.BackoffMax,
		BackoffFactor:     cfg.Stream.BackoffFactor,
		MaxAttempts:       cfg.Stream.MaxAttempts,
		MaxDuration:       cfg.Stream.MaxDuration,
		ReadTimeout:       cfg.Stream.ReadTimeout,
		HeartbeatLogEvery: cfg.Stream.HeartbeatLogEvery,
		PublishTimeout:    cfg.Stream.PublishTimeout,
	}, client, registry, specs, normalizer, dedup.NewTracker(), publisher, m, logger)

	listener := control.NewListener(control.Config{
		CommandKey: cfg.Redis.CommandKey,
	}, store, registry, control.NewListResponder(store, cfg.Redis.ResponseKey), logger)

	server := metrics.NewServer(metrics.ServerConfig{
		Port:        cfg.Metrics.Port,
		MetricsPath: cfg.Metrics.Path,
	}, reg, store.Ping, registry.List, logger)

	svc := pipeline.New(pipeline.Config{
		KeyPrefix:          cfg.Redis.KeyPrefix,
		Sweep:              cfg.Startup.SweepEnabled(),
		BackfillOnAdd:      cfg.Backfill.OnAddEnabled(),
		SupervisorInterval: cfg.Supervisor.Interval,
	}, pipeline.Components{
		Cache:      store,
		Registry:   registry,
		Backfiller: backfiller,
		Streamer:   connector,
		Archive:    tickArchive,
		Runners: map[string]pipeline.Runner{
			"control": listener,
			"http":    server,
		},
		Metrics: m,
	}, logger)

	logger.Info("price streamer running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	if err := svc.Run(ctx); err != nil {
		return err
	}

	stats := publisher.Stats()
	logger.Info("price streamer stopped",
		"published", stats.Published,
		"failed", stats.Failed,
		"cache_reconnects", stats.Reconnects,
	)
	return nil
}

// applyFlags lets command-line values override the config file.
func applyFlags(cfg *config.StreamerConfig, broker string, rows int, ttl time.Duration, granularity string) {
	if broker != "" {
		cfg.Broker = broker
	}
	if rows > 0 {
		cfg.Backfill.Rows = rows
	}
	if ttl > 0 {
		cfg.TTL.PriceData = ttl
		cfg.TTL.HistoricalData = ttl
	}
	if granularity != "" {
		cfg.Backfill.Granularity = granularity
	}
}

// loadCredentials prefers the secrets file and falls back to inline config.
func loadCredentials(cfg *config.StreamerConfig) (*auth.Credentials, error) {
	if cfg.API.CredentialsFile != "" {
		creds, err := auth.LoadCredentials(cfg.API.CredentialsFile, cfg.Broker)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		return creds, nil
	}

	creds := &auth.Credentials{APIKey: cfg.API.APIKey, AccountID: cfg.API.AccountID}
	if err := creds.Validate(); err != nil {
		return nil, errors.New("api.api_key and api.account_id are required when api.credentials_file is unset")
	}
	return creds, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
