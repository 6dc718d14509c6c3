package backfill

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/price-streamer/internal/api"
	"github.com/rickgao/price-streamer/internal/model"
	"github.com/rickgao/price-streamer/internal/normalize"
)

type fakeCandles struct {
	mu   sync.Mutex
	data map[string][]api.Candle
	errs map[string]error
	opts []api.CandlesOptions
}

func (f *fakeCandles) GetCandles(_ context.Context, instrument string, opts api.CandlesOptions) ([]api.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if err := f.errs[instrument]; err != nil {
		return nil, err
	}
	return f.data[instrument], nil
}

type defaultSpecs struct{}

func (defaultSpecs) Lookup(_ context.Context, name string) model.InstrumentSpec {
	return model.DefaultSpec(name)
}

type collector struct {
	mu    sync.Mutex
	ticks []model.Tick
	fail  map[int]bool // fail the n-th publish (0-based)
	n     int
}

func (c *collector) Publish(_ context.Context, tick model.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.n
	c.n++
	if c.fail[i] {
		return model.ErrCacheUnavailable
	}
	c.ticks = append(c.ticks, tick)
	return nil
}

func (c *collector) byInstrument(name string) []model.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Tick
	for _, t := range c.ticks {
		if t.Instrument == name {
			out = append(out, t)
		}
	}
	return out
}

func candle(ts, bid, ask string) api.Candle {
	return api.Candle{
		Time:     ts,
		Complete: true,
		Bid:      &api.CandleOHLC{O: bid, H: bid, L: bid, C: bid},
		Ask:      &api.CandleOHLC{O: ask, H: ask, L: ask, C: ask},
	}
}

func newBackfiller(t *testing.T, src CandleSource, h TickHandler) *Backfiller {
	t.Helper()
	return New(Config{Rows: 3, Granularity: "S5", Price: "BA", Concurrency: 2},
		src, defaultSpecs{}, normalize.New(time.UTC), h, nil, nil)
}

func TestRun(t *testing.T) {
	src := &fakeCandles{
		data: map[string][]api.Candle{
			// Out of order on purpose.
			"EUR_USD": {
				candle("2024-03-01T14:30:10Z", "1.08010", "1.08020"),
				candle("2024-03-01T14:30:00Z", "1.08000", "1.08010"),
				candle("2024-03-01T14:30:05Z", "1.08005", "1.08015"),
			},
			"USD_CAD": {
				candle("2024-03-01T14:30:00Z", "1.35000", "1.35010"),
				{Time: "2024-03-01T14:30:05Z"}, // no price block
			},
		},
		errs: map[string]error{"FOO_BAR": model.ErrNotFound},
	}
	h := &collector{}
	b := newBackfiller(t, src, h)

	res := b.Run(context.Background(), []string{"USD_CAD", "FOO_BAR", "EUR_USD"})

	assert.Equal(t, 4, res.Published)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.Instruments, 3)
	assert.Equal(t, "EUR_USD", res.Instruments[0].Instrument)
	assert.ErrorIs(t, res.Instruments[1].Err, model.ErrNotFound)

	eur := h.byInstrument("EUR_USD")
	require.Len(t, eur, 3)
	for i := 1; i < len(eur); i++ {
		assert.True(t, eur[i-1].Timestamp.Before(eur[i].Timestamp), "rows published in chronological order")
	}
	for _, tick := range eur {
		assert.Equal(t, model.SourceHistorical, tick.Source)
	}

	for _, o := range src.opts {
		assert.Equal(t, api.CandlesOptions{Count: 3, Granularity: "S5", Price: "BA"}, o)
	}
}

func TestBackfillInstrument_PublishFailuresCounted(t *testing.T) {
	src := &fakeCandles{data: map[string][]api.Candle{
		"GBP_USD": {
			candle("2024-03-01T14:30:00Z", "1.2600", "1.2602"),
			candle("2024-03-01T14:30:05Z", "1.2601", "1.2603"),
		},
	}}
	h := &collector{fail: map[int]bool{0: true}}
	b := newBackfiller(t, src, h)

	r := b.BackfillInstrument(context.Background(), "GBP_USD")
	assert.Equal(t, 2, r.Fetched)
	assert.Equal(t, 1, r.Published)
	assert.Equal(t, 1, r.Failed)
	assert.NoError(t, r.Err)
}

func TestRun_Cancelled(t *testing.T) {
	src := &fakeCandles{errs: map[string]error{}}
	h := TickHandlerFunc(func(context.Context, model.Tick) error { return nil })
	b := newBackfiller(t, src, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := b.Run(ctx, []string{"EUR_USD", "USD_CAD"})
	assert.Empty(t, res.Instruments)
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{}, &fakeCandles{}, defaultSpecs{}, normalize.New(nil), &collector{}, nil, nil)
	assert.Equal(t, DefaultConfig(), b.cfg)
}

func TestRun_FetchError(t *testing.T) {
	src := &fakeCandles{errs: map[string]error{"EUR_USD": errors.New("timeout")}}
	b := newBackfiller(t, src, &collector{})

	res := b.Run(context.Background(), []string{"EUR_USD"})
	assert.Equal(t, 1, res.Errors)
	assert.Zero(t, res.Published)
}

func TestRun_EmptyResultSkipped(t *testing.T) {
	src := &fakeCandles{data: map[string][]api.Candle{
		"EUR_USD": {candle("2024-03-01T14:30:00Z", "1.08000", "1.08010")},
		"USD_CAD": {},
	}}
	h := &collector{}
	b := newBackfiller(t, src, h)

	res := b.Run(context.Background(), []string{"EUR_USD", "USD_CAD"})
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Published)
	require.Len(t, res.Instruments, 2)
	assert.NoError(t, res.Instruments[0].Err)
	assert.ErrorIs(t, res.Instruments[1].Err, ErrNoCandles)
	assert.Empty(t, h.byInstrument("USD_CAD"))
}
