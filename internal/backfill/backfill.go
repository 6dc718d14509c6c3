package backfill

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/price-streamer/internal/api"
	"github.com/rickgao/price-streamer/internal/metrics"
	"github.com/rickgao/price-streamer/internal/model"
	"github.com/rickgao/price-streamer/internal/normalize"
)

// ErrNoCandles is reported for an instrument whose candle query came back empty.
var ErrNoCandles = errors.New("no historical candles returned")

// CandleSource fetches historical candles.
type CandleSource interface {
	GetCandles(ctx context.Context, instrument string, opts api.CandlesOptions) ([]api.Candle, error)
}

// SpecResolver resolves instrument conventions.
type SpecResolver interface {
	Lookup(ctx context.Context, name string) model.InstrumentSpec
}

// TickHandler receives normalized historical ticks.
type TickHandler interface {
	Publish(ctx context.Context, tick model.Tick) error
}

// TickHandlerFunc is a function adapter for TickHandler.
type TickHandlerFunc func(ctx context.Context, tick model.Tick) error

func (f TickHandlerFunc) Publish(ctx context.Context, tick model.Tick) error {
	return f(ctx, tick)
}

// Config holds backfill configuration.
type Config struct {
	Rows        int           // Candles per instrument (default: 5000)
	Granularity string        // Candle size (default: S5)
	Price       string        // Price components (default: BA)
	Concurrency int           // Max instruments in flight (default: 4)
	Timeout     time.Duration // Per-instrument fetch timeout (default: 2m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Rows:        5000,
		Granularity: "S5",
		Price:       "BA",
		Concurrency: 4,
		Timeout:     2 * time.Minute,
	}
}

// InstrumentResult summarizes the backfill of one instrument.
type InstrumentResult struct {
	Instrument string
	Fetched    int
	Published  int
	Malformed  int
	Failed     int // Publish failures
	Err        error
}

// Result summarizes a backfill run.
type Result struct {
	Instruments []InstrumentResult
	Published   int
	Malformed   int
	Failed      int
	Errors      int // Instruments whose fetch failed
	Duration    time.Duration
}

// Backfiller fetches and publishes historical ticks.
type Backfiller struct {
	cfg        Config
	candles    CandleSource
	specs      SpecResolver
	normalizer *normalize.Normalizer
	handler    TickHandler
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a new Backfiller.
func New(cfg Config, candles CandleSource, specs SpecResolver, normalizer *normalize.Normalizer, handler TickHandler, m *metrics.Metrics, logger *slog.Logger) *Backfiller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Rows <= 0 {
		cfg.Rows = def.Rows
	}
	if cfg.Granularity == "" {
		cfg.Granularity = def.Granularity
	}
	if cfg.Price == "" {
		cfg.Price = def.Price
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Backfiller{
		cfg:        cfg,
		candles:    candles,
		specs:      specs,
		normalizer: normalizer,
		handler:    handler,
		metrics:    m,
		logger:     logger.With("component", "backfill"),
	}
}

// Run backfills every instrument. It never fails as a whole; per-instrument
// errors are reported in the Result.
func (b *Backfiller) Run(ctx context.Context, instruments []string) Result {
	start := time.Now()

	var (
		mu      sync.Mutex
		results = make([]InstrumentResult, 0, len(instruments))
	)

	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)

	for _, inst := range instruments {
		inst := inst
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r := b.BackfillInstrument(ctx, inst)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	slices.SortFunc(results, func(a, c InstrumentResult) int {
		return strings.Compare(a.Instrument, c.Instrument)
	})

	res := Result{Instruments: results, Duration: time.Since(start)}
	for _, r := range results {
		res.Published += r.Published
		res.Malformed += r.Malformed
		res.Failed += r.Failed
		if r.Err != nil {
			res.Errors++
		}
	}

	b.logger.Info("backfill complete",
		"instruments", len(instruments),
		"published", res.Published,
		"malformed", res.Malformed,
		"failed", res.Failed,
		"errors", res.Errors,
		"duration", res.Duration,
	)

	return res
}

// BackfillInstrument fetches, normalizes, sorts and publishes the recent
// candles of one instrument.
func (b *Backfiller) BackfillInstrument(ctx context.Context, instrument string) InstrumentResult {
	res := InstrumentResult{Instrument: instrument}
	logger := b.logger.With("instrument", instrument)

	fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	candles, err := b.candles.GetCandles(fetchCtx, instrument, api.CandlesOptions{
		Count:       b.cfg.Rows,
		Granularity: b.cfg.Granularity,
		Price:       b.cfg.Price,
	})
	cancel()
	if err != nil {
		res.Err = err
		logger.Warn("failed to fetch historical candles", "error", err)
		return res
	}
	res.Fetched = len(candles)
	if len(candles) == 0 {
		res.Err = ErrNoCandles
		logger.Warn("no historical data returned, skipping",
			"granularity", b.cfg.Granularity,
			"rows", b.cfg.Rows,
		)
		return res
	}

	spec := b.specs.Lookup(ctx, instrument)

	ticks := make([]model.Tick, 0, len(candles))
	for _, c := range candles {
		tick, err := b.normalizer.FromCandle(instrument, c, spec)
		if err != nil {
			res.Malformed++
			b.metrics.Malformed("candle")
			logger.Debug("skipping malformed candle", "time", c.Time, "error", err)
			continue
		}
		ticks = append(ticks, tick)
	}

	slices.SortStableFunc(ticks, func(a, c model.Tick) int {
		return a.Timestamp.Compare(c.Timestamp)
	})

	for _, tick := range ticks {
		if err := b.handler.Publish(ctx, tick); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			res.Failed++
			logger.Warn("failed to publish historical tick", "error", err)
			continue
		}
		res.Published++
	}

	b.metrics.BackfillPublished(instrument, res.Published)

	logger.Info("historical data loaded",
		"rows", res.Fetched,
		"published", res.Published,
		"malformed", res.Malformed,
	)

	return res
}
