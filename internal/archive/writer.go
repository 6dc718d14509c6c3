package archive

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/price-streamer/internal/model"
)

// BatchSender sends a pgx.Batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds writer configuration.
type WriterConfig struct {
	BatchSize     int           // Rows per insert batch (default: 500)
	FlushInterval time.Duration // Max time between flushes (default: 1s)
	BufferSize    int           // Pending ticks before drops (default: 10000)
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// WriterStats tracks writer statistics.
type WriterStats struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}

// tickRow is one price_ticks row.
type tickRow struct {
	Ts         time.Time
	Instrument string
	Source     string
	Bid        decimal.NullDecimal
	Ask        decimal.NullDecimal
	Mid        decimal.NullDecimal
	SpreadPips decimal.NullDecimal
	Tradeable  bool
}

// TickWriter batches ticks into the price_ticks table.
type TickWriter struct {
	cfg    WriterConfig
	db     BatchSender
	logger *slog.Logger

	input chan model.Tick

	batch   []tickRow
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats   WriterStats
	dropped atomic.Int64
}

// NewTickWriter creates a new TickWriter.
func NewTickWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *TickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &TickWriter{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "archive"),
		input:  make(chan model.Tick, cfg.BufferSize),
		batch:  make([]tickRow, 0, cfg.BatchSize),
	}
}

// Enqueue hands a tick to the writer without blocking. It returns false
// when the buffer is full and the tick was dropped.
func (w *TickWriter) Enqueue(tick model.Tick) bool {
	select {
	case w.input <- tick:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

// Start begins consuming ticks and writing to the database.
func (w *TickWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick archive started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains pending ticks and performs a final flush.
func (w *TickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick archive")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("tick archive stop timed out")
	}

	// Drain what is still buffered.
drain:
	for {
		select {
		case tick := <-w.input:
			w.add(tick)
		default:
			break drain
		}
	}

	w.flush(ctx)

	w.logger.Info("tick archive stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current statistics.
func (w *TickWriter) Stats() WriterStats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	s := w.stats
	s.Dropped = w.dropped.Load()
	return s
}

func (w *TickWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case tick := <-w.input:
			if w.add(tick) {
				w.flush(w.ctx)
			}
		}
	}
}

func (w *TickWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a tick and reports whether the batch is full.
func (w *TickWriter) add(tick model.Tick) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, transform(tick))
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(tick model.Tick) tickRow {
	return tickRow{
		Ts:         tick.Timestamp.UTC(),
		Instrument: tick.Instrument,
		Source:     string(tick.Source),
		Bid:        tick.Bid,
		Ask:        tick.Ask,
		Mid:        tick.Mid,
		SpreadPips: tick.SpreadPips,
		Tradeable:  tick.Tradeable,
	}
}

// flush writes the current batch to the database.
func (w *TickWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	// The final flush runs after cancellation.
	conflicts, err := w.batchInsert(context.WithoutCancel(ctx), batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TickWriter) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO price_ticks (ts, instrument, source, bid, ask, mid, spread_pips, tradeable)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (instrument, source, ts) DO NOTHING
		`, r.Ts, r.Instrument, r.Source, r.Bid, r.Ask, r.Mid, r.SpreadPips, r.Tradeable)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
