package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/price-streamer/internal/backfill"
	"github.com/rickgao/price-streamer/internal/instrument"
	"github.com/rickgao/price-streamer/internal/metrics"
	"github.com/rickgao/price-streamer/internal/model"
	"github.com/rickgao/price-streamer/internal/stream"
)

// KeyStore is the cache view used for the sweep and the supervisor.
type KeyStore interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteMany(ctx context.Context, keys []string) (int64, error)
}

// Registry is the instrument registry view the service needs.
type Registry interface {
	List() []string
	Subscribe() (<-chan instrument.Change, func())
}

// Backfiller loads historical ticks.
type Backfiller interface {
	Run(ctx context.Context, instruments []string) backfill.Result
	BackfillInstrument(ctx context.Context, instrument string) backfill.InstrumentResult
}

// Streamer runs the live stream until ctx ends or a fatal error occurs.
type Streamer interface {
	Run(ctx context.Context) error
	Stats() stream.Stats
}

// Runner is a background component that runs until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Archive is the optional tick archive.
type Archive interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config holds service configuration.
type Config struct {
	KeyPrefix          string
	Sweep              bool
	BackfillOnAdd      bool
	SupervisorInterval time.Duration // default: 30s
	ShutdownTimeout    time.Duration // Archive drain bound (default: 10s)
}

// Components are the parts the service runs. Archive and Runners are
// optional.
type Components struct {
	Cache      KeyStore
	Registry   Registry
	Backfiller Backfiller
	Streamer   Streamer
	Archive    Archive
	Runners    map[string]Runner
	Metrics    *metrics.Metrics
}

// Service runs the pipeline.
type Service struct {
	cfg    Config
	c      Components
	logger *slog.Logger
}

// New creates a Service.
func New(cfg Config, c Components, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SupervisorInterval <= 0 {
		cfg.SupervisorInterval = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Service{
		cfg:    cfg,
		c:      c,
		logger: logger.With("component", "service"),
	}
}

// Run executes startup and blocks until the stream ends. It returns nil on
// cancellation and the cause on a fatal error.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Sweep {
		if err := s.sweep(ctx); err != nil {
			return err
		}
	}

	if s.c.Archive != nil {
		if err := s.c.Archive.Start(ctx); err != nil {
			return fmt.Errorf("start archive: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			defer cancel()
			if err := s.c.Archive.Stop(stopCtx); err != nil {
				s.logger.Warn("archive stop failed", "error", err)
			}
		}()
	}

	if err := s.backfill(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		s.supervise(gctx)
		return nil
	})

	if s.cfg.BackfillOnAdd {
		changes, unsubscribe := s.c.Registry.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			s.dispatchAdds(gctx, changes)
			return nil
		})
	}

	for name, r := range s.c.Runners {
		name, r := name, r
		g.Go(func() error {
			if err := r.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		// The stream ending for any reason ends the service.
		defer cancel()
		return s.c.Streamer.Run(gctx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("service stopped with error", "error", err)
		return err
	}

	s.logger.Info("service stopped", "published", s.c.Streamer.Stats().Published)
	return nil
}

// sweep deletes every key left under the prefix by a previous run.
func (s *Service) sweep(ctx context.Context) error {
	keys, err := s.c.Cache.ListKeys(ctx, s.cfg.KeyPrefix)
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	n, err := s.c.Cache.DeleteMany(ctx, keys)
	if err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	s.logger.Info("removed stale price keys", "prefix", s.cfg.KeyPrefix, "deleted", n)
	return nil
}

// backfill loads history for the initial instruments. An auth failure is
// fatal; other per-instrument failures are logged by the backfiller.
func (s *Service) backfill(ctx context.Context) error {
	instruments := s.c.Registry.List()
	if len(instruments) == 0 {
		return nil
	}

	res := s.c.Backfiller.Run(ctx, instruments)
	for _, r := range res.Instruments {
		if errors.Is(r.Err, model.ErrAuth) {
			return fmt.Errorf("backfill %s: %w", r.Instrument, r.Err)
		}
	}
	return nil
}

func (s *Service) dispatchAdds(ctx context.Context, changes <-chan instrument.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Kind != instrument.ChangeAdded {
				continue
			}
			r := s.c.Backfiller.BackfillInstrument(ctx, c.Instrument)
			s.logger.Info("backfilled added instrument",
				"instrument", c.Instrument,
				"published", r.Published,
				"error", r.Err,
			)
		}
	}
}

// supervise periodically logs liveness.
func (s *Service) supervise(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SupervisorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *Service) report(ctx context.Context) {
	active := s.c.Registry.List()
	s.c.Metrics.SetActiveInstruments(len(active))

	stats := s.c.Streamer.Stats()
	attrs := []any{
		"instruments", active,
		"state", stats.State.String(),
		"published", stats.Published,
		"reconnects", stats.Reconnects,
	}

	keys, err := s.c.Cache.ListKeys(ctx, s.cfg.KeyPrefix)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("streamer alive, cache unavailable", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("streamer alive", append(attrs, "live_keys", len(keys))...)
}
