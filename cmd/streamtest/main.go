// streamtest streams normalized ticks to the console without touching Redis.
// Usage: go run ./cmd/streamtest -config configs/streamer.example.yaml -duration 30s
//
// Required environment variables (unless api.credentials_file is set):
//
//	OANDA_API_KEY    - Bearer token for the provider API
//	OANDA_ACCOUNT_ID - Account the instruments and stream are read from
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/price-streamer/internal/api"
	"github.com/rickgao/price-streamer/internal/auth"
	"github.com/rickgao/price-streamer/internal/backfill"
	"github.com/rickgao/price-streamer/internal/config"
	"github.com/rickgao/price-streamer/internal/dedup"
	"github.com/rickgao/price-streamer/internal/instrument"
	"github.com/rickgao/price-streamer/internal/model"
	"github.com/rickgao/price-streamer/internal/normalize"
	"github.com/rickgao/price-streamer/internal/sink"
	"github.com/rickgao/price-streamer/internal/stream"
	"github.com/rickgao/price-streamer/internal/version"
)

// consolePublisher prints ticks instead of caching them.
type consolePublisher struct {
	verbose bool
	count   atomic.Int64
}

func (p *consolePublisher) Publish(_ context.Context, tick model.Tick) error {
	p.count.Add(1)
	if p.verbose {
		data, err := sink.Encode(tick)
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %s\n", strings.ToUpper(string(tick.Source)), data)
		return nil
	}
	fmt.Printf("[%s] %s %s bid=%s ask=%s mid=%s spread=%s\n",
		strings.ToUpper(string(tick.Source)), tick.FormattedTimestamp(), tick.Instrument,
		show(tick.Bid), show(tick.Ask), show(tick.Mid), show(tick.SpreadPips))
	return nil
}

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	instruments := flag.String("instruments", "", "comma-separated instruments (overrides config)")
	duration := flag.Duration("duration", 30*time.Second, "how long to stream")
	rows := flag.Int("backfill", 0, "historical candles to print first per instrument")
	verbose := flag.Bool("verbose", false, "print the cached JSON value")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *instruments != "" {
		cfg.Instruments = strings.Split(*instruments, ",")
	}

	creds := &auth.Credentials{APIKey: cfg.API.APIKey, AccountID: cfg.API.AccountID}
	if cfg.API.CredentialsFile != "" {
		creds, err = auth.LoadCredentials(cfg.API.CredentialsFile, cfg.Broker)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
	}
	if err := creds.Validate(); err != nil {
		logger.Error("API credentials required", "error", err)
		logger.Info("Set environment variables: OANDA_API_KEY and OANDA_ACCOUNT_ID")
		os.Exit(1)
	}

	zone, err := time.LoadLocation(cfg.Pricing.ReferenceZone)
	if err != nil {
		logger.Error("invalid reference zone", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := api.NewClient(cfg.API.RestURL, cfg.API.StreamURL, creds, api.WithLogger(logger))
	registry := instrument.NewRegistry(cfg.Instruments, nil, logger)
	specs := instrument.NewMetadataCache(client, instrument.MetadataConfig{
		DefaultPrecision: cfg.Pricing.DefaultPrecision,
		DefaultPipScale:  cfg.Pricing.DefaultPipScale,
		PipScales:        cfg.Pricing.PipScales,
	}, logger)
	normalizer := normalize.New(zone)
	out := &consolePublisher{verbose: *verbose}

	if *rows > 0 {
		bf := backfill.New(backfill.Config{
			Rows:        *rows,
			Granularity: cfg.Backfill.Granularity,
			Price:       cfg.Backfill.Price,
		}, client, specs, normalizer, out, nil, logger)
		bf.Run(ctx, registry.List())
	}

	streamCfg := stream.DefaultConfig()
	streamCfg.MaxDuration = *duration
	connector := stream.NewConnector(streamCfg, client, registry, specs, normalizer, dedup.NewTracker(), out, nil, logger)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := connector.Stats()
				logger.Info("stats",
					"state", s.State.String(),
					"printed", out.count.Load(),
					"suppressed", s.Suppressed,
					"heartbeats", s.Heartbeats,
					"malformed", s.Malformed,
					"reconnects", s.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop",
		"version", version.String(),
		"instruments", registry.List(),
		"duration", *duration,
	)

	if err := connector.Run(ctx); err != nil {
		logger.Error("stream failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete", "printed", out.count.Load())
}

func show(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}
