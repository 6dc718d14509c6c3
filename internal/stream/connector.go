package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/price-streamer/internal/api"
	"github.com/rickgao/price-streamer/internal/dedup"
	"github.com/rickgao/price-streamer/internal/instrument"
	"github.com/rickgao/price-streamer/internal/metrics"
	"github.com/rickgao/price-streamer/internal/model"
	"github.com/rickgao/price-streamer/internal/normalize"
)

// maxLoggedLine caps how much of a malformed line is logged.
const maxLoggedLine = 256

// Opener opens the multiplexed price stream.
type Opener interface {
	OpenPriceStream(ctx context.Context, instruments []string) (io.ReadCloser, error)
}

// ActiveSet is the registry view the connector needs.
type ActiveSet interface {
	List() []string
	Contains(name string) bool
	Subscribe() (<-chan instrument.Change, func())
}

// SpecResolver resolves instrument conventions. Lookup may call the
// provider; Cached must not block.
type SpecResolver interface {
	Lookup(ctx context.Context, name string) model.InstrumentSpec
	Cached(name string) model.InstrumentSpec
}

// Publisher receives normalized live ticks.
type Publisher interface {
	Publish(ctx context.Context, tick model.Tick) error
}

// Connector owns the price stream connection lifecycle.
type Connector struct {
	cfg        Config
	opener     Opener
	active     ActiveSet
	specs      SpecResolver
	normalizer *normalize.Normalizer
	dedup      *dedup.Tracker
	publisher  Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	backoff *Backoff
	sleep   func(ctx context.Context, d time.Duration) error

	state      atomic.Int32
	sessions   atomic.Int64
	reconnects atomic.Int64
	heartbeats atomic.Int64
	published  atomic.Int64
	suppressed atomic.Int64
	malformed  atomic.Int64
	publishErr atomic.Int64
}

// NewConnector creates a Connector. Zero config fields take defaults.
func NewConnector(
	cfg Config,
	opener Opener,
	active ActiveSet,
	specs SpecResolver,
	normalizer *normalize.Normalizer,
	tracker *dedup.Tracker,
	publisher Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = dedup.NewTracker()
	}

	def := DefaultConfig()
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	return &Connector{
		cfg:        cfg,
		opener:     opener,
		active:     active,
		specs:      specs,
		normalizer: normalizer,
		dedup:      tracker,
		publisher:  publisher,
		metrics:    m,
		logger:     logger.With("component", "stream"),
		backoff:    NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.BackoffFactor),
		sleep:      sleepCtx,
	}
}

// Run streams until ctx is cancelled, MaxDuration elapses, a fatal error
// occurs or MaxAttempts consecutive reconnects fail. Cancellation and
// MaxDuration return nil.
func (c *Connector) Run(ctx context.Context) error {
	runCtx := ctx
	if c.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.MaxDuration)
		defer cancel()
	}

	changes, unsubscribe := c.active.Subscribe()
	defer unsubscribe()

	defer c.setState(StateClosed)

	for {
		if runCtx.Err() != nil {
			c.logger.Info("price stream stopped")
			return nil
		}

		c.setState(StateDisconnected)

		instruments := c.active.List()
		if len(instruments) == 0 {
			c.logger.Info("no active instruments, waiting")
			select {
			case <-runCtx.Done():
				continue
			case _, ok := <-changes:
				if !ok {
					return nil
				}
				continue
			}
		}

		err := c.session(runCtx, instruments, changes)

		switch {
		case runCtx.Err() != nil:
			continue
		case errors.Is(err, errResubscribe):
			c.logger.Info("instrument set changed, resubscribing")
			c.reconnects.Add(1)
			c.metrics.StreamReconnected()
			continue
		case model.IsFatal(err):
			c.setState(StateError)
			c.logger.Error("price stream failed permanently", "error", err)
			return err
		}

		c.setState(StateError)

		if c.cfg.MaxAttempts > 0 && c.backoff.Attempts() >= c.cfg.MaxAttempts {
			c.logger.Error("giving up on price stream",
				"attempts", c.backoff.Attempts(),
				"error", err,
			)
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.backoff.Attempts(), err)
		}

		delay := c.backoff.Next()
		c.logger.Warn("price stream interrupted, reconnecting",
			"error", err,
			"attempt", c.backoff.Attempts(),
			"delay", delay,
		)

		if err := c.sleep(runCtx, delay); err != nil {
			continue
		}

		c.reconnects.Add(1)
		c.metrics.StreamReconnected()
	}
}

// session opens one connection and reads it until it fails, goes stale,
// needs resubscribing or ctx ends.
func (c *Connector) session(ctx context.Context, instruments []string, changes <-chan instrument.Change) error {
	c.setState(StateConnecting)
	c.logger.Info("connecting to price stream", "instruments", instruments)

	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Conventions are fixed for the session; the reader never waits on the provider.
	specs := make(map[string]model.InstrumentSpec, len(instruments))
	for _, name := range instruments {
		specs[name] = c.specs.Lookup(connCtx, name)
	}
	if err := connCtx.Err(); err != nil {
		return err
	}

	body, err := c.opener.OpenPriceStream(connCtx, instruments)
	if err != nil {
		return err
	}
	defer body.Close()

	// Unblock the reader as soon as the session ends for any reason.
	stop := context.AfterFunc(connCtx, func() { body.Close() })
	defer stop()

	c.setState(StateStreaming)
	c.sessions.Add(1)
	c.backoff.Reset()
	c.dedup.Reset()
	c.logger.Info("price stream connected", "instruments", len(instruments))

	watchdog := time.AfterFunc(c.cfg.ReadTimeout, func() { cancel(ErrStale) })
	defer watchdog.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchChanges(connCtx, instruments, changes, cancel)
	}()
	defer func() {
		cancel(nil)
		wg.Wait()
	}()

	reader := bufio.NewReaderSize(body, 64*1024)
	for {
		line, readErr := reader.ReadBytes('\n')
		// A line cut short by a closed connection is dropped, not counted.
		if len(line) > 0 && (readErr == nil || errors.Is(readErr, io.EOF)) {
			watchdog.Reset(c.cfg.ReadTimeout)
			c.handleLine(connCtx, line, specs)
		}
		if readErr == nil {
			continue
		}

		if connCtx.Err() != nil {
			cause := context.Cause(connCtx)
			switch {
			case errors.Is(cause, ErrStale):
				return fmt.Errorf("%w: %w", model.ErrTransient, ErrStale)
			case errors.Is(cause, errResubscribe):
				return errResubscribe
			default:
				return cause
			}
		}
		if errors.Is(readErr, io.EOF) {
			return fmt.Errorf("stream closed by provider: %w", model.ErrTransient)
		}
		return fmt.Errorf("read stream: %w: %w", model.ErrTransient, readErr)
	}
}

// watchChanges ends the session when an instrument it does not carry is
// added. Removals only narrow the forward filter.
func (c *Connector) watchChanges(ctx context.Context, carried []string, changes <-chan instrument.Change, cancel context.CancelCauseFunc) {
	set := make(map[string]struct{}, len(carried))
	for _, name := range carried {
		set[name] = struct{}{}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			if ch.Kind != instrument.ChangeAdded {
				continue
			}
			// Stale if removed again while no session was reading.
			if !c.active.Contains(ch.Instrument) {
				continue
			}
			c.dedup.Forget(ch.Instrument)
			if _, ok := set[ch.Instrument]; !ok {
				cancel(errResubscribe)
				return
			}
		}
	}
}

// handleLine processes one NDJSON line. Nothing here ends the session.
func (c *Connector) handleLine(ctx context.Context, line []byte, specs map[string]model.InstrumentSpec) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	msg, err := api.DecodeStreamMessage(line)
	if err != nil {
		c.malformed.Add(1)
		c.metrics.Malformed("stream")
		c.logger.Warn("skipping malformed stream line", "error", err, "line", truncate(line))
		return
	}

	switch m := msg.(type) {
	case *api.HeartbeatMessage:
		n := c.heartbeats.Add(1)
		c.metrics.Heartbeat()
		if c.cfg.HeartbeatLogEvery > 0 && n%int64(c.cfg.HeartbeatLogEvery) == 0 {
			c.logger.Info("stream heartbeat", "count", n, "time", m.Time)
		}

	case *api.PriceMessage:
		c.handlePrice(ctx, m, specs)

	default:
		c.logger.Debug("ignoring stream message", "type", msg.MessageType())
	}
}

func (c *Connector) handlePrice(ctx context.Context, m *api.PriceMessage, specs map[string]model.InstrumentSpec) {
	if !c.active.Contains(m.Instrument) {
		return
	}

	spec, ok := specs[m.Instrument]
	if !ok {
		spec = c.specs.Cached(m.Instrument)
	}
	tick, err := c.normalizer.FromPrice(m, spec)
	if err != nil {
		c.malformed.Add(1)
		c.metrics.Malformed("price")
		c.logger.Warn("skipping malformed price", "instrument", m.Instrument, "error", err)
		return
	}

	if !c.dedup.ShouldEmit(tick.Instrument, tick.Bid.Decimal) {
		c.suppressed.Add(1)
		c.metrics.TickSuppressed()
		return
	}

	// In-flight writes finish even when the stream is being torn down.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.PublishTimeout)
	defer cancel()

	if err := c.publisher.Publish(pubCtx, tick); err != nil {
		c.publishErr.Add(1)
		c.logger.Warn("failed to publish tick", "instrument", tick.Instrument, "error", err)
		return
	}
	c.published.Add(1)
}

// State returns the current state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Stats returns current statistics.
func (c *Connector) Stats() Stats {
	return Stats{
		State:      c.State(),
		Sessions:   c.sessions.Load(),
		Reconnects: c.reconnects.Load(),
		Heartbeats: c.heartbeats.Load(),
		Published:  c.published.Load(),
		Suppressed: c.suppressed.Load(),
		Malformed:  c.malformed.Load(),
		PublishErr: c.publishErr.Load(),
	}
}

func (c *Connector) setState(s State) {
	c.state.Store(int32(s))
	c.metrics.SetStreamState(int(s))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte) string {
	if len(b) > maxLoggedLine {
		return string(b[:maxLoggedLine]) + "..."
	}
	return string(b)
}
