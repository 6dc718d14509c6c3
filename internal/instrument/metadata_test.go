package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/price-streamer/internal/model"
)

type fakeSource struct {
	specs []model.InstrumentSpec
	err   error
	calls int
}

func (f *fakeSource) InstrumentSpecs(context.Context) ([]model.InstrumentSpec, error) {
	f.calls++
	return f.specs, f.err
}

func TestMetadataCache_Lookup(t *testing.T) {
	src := &fakeSource{specs: []model.InstrumentSpec{
		{Name: "EUR_USD", DisplayPrecision: 5, PipScale: decimal.NewFromInt(10000)},
		{Name: "USD_JPY", DisplayPrecision: 3, PipScale: decimal.NewFromInt(100)},
		{Name: "XAU_USD", DisplayPrecision: 2},
	}}
	m := NewMetadataCache(src, MetadataConfig{PipScales: map[string]int64{"EUR_USD": 1000}}, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		precision int
		scale     int64
	}{
		{"USD_JPY", 3, 100},
		{"EUR_USD", 5, 1000}, // config override wins
		{"XAU_USD", 2, 10000},
		{"UNKNOWN", 5, 10000},
	}
	for _, tt := range tests {
		spec := m.Lookup(ctx, tt.name)
		assert.Equal(t, tt.name, spec.Name)
		assert.Equal(t, tt.precision, spec.DisplayPrecision, tt.name)
		assert.True(t, decimal.NewFromInt(tt.scale).Equal(spec.PipScale), "%s scale = %s", tt.name, spec.PipScale)
	}

	assert.Equal(t, 1, src.calls, "metadata loaded once")
	assert.Equal(t, 3, m.Len())
}

func TestMetadataCache_FallbackOnError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	m := NewMetadataCache(src, MetadataConfig{
		DefaultPrecision: 4,
		PipScales:        map[string]int64{"USD_JPY": 100},
	}, nil)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	spec := m.Lookup(ctx, "EUR_USD")
	assert.Equal(t, 4, spec.DisplayPrecision)
	assert.True(t, decimal.NewFromInt(model.DefaultPipScale).Equal(spec.PipScale))

	spec = m.Lookup(ctx, "USD_JPY")
	assert.True(t, decimal.NewFromInt(100).Equal(spec.PipScale))
	assert.Equal(t, 1, src.calls, "no retry inside the retry interval")

	now = now.Add(2 * time.Minute)
	src.err = nil
	src.specs = []model.InstrumentSpec{{Name: "EUR_USD", DisplayPrecision: 5, PipScale: decimal.NewFromInt(10000)}}

	spec = m.Lookup(ctx, "EUR_USD")
	assert.Equal(t, 5, spec.DisplayPrecision)
	assert.Equal(t, 2, src.calls)
}

func TestMetadataCache_NilSource(t *testing.T) {
	m := NewMetadataCache(nil, MetadataConfig{}, nil)
	spec := m.Lookup(context.Background(), "EUR_USD")
	assert.Equal(t, model.DefaultDisplayPrecision, spec.DisplayPrecision)
	require.NoError(t, m.Refresh(context.Background()))
}

// blockingSource holds InstrumentSpecs until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) InstrumentSpecs(context.Context) ([]model.InstrumentSpec, error) {
	close(b.entered)
	<-b.release
	return []model.InstrumentSpec{{Name: "USD_JPY", DisplayPrecision: 3, PipScale: decimal.NewFromInt(100)}}, nil
}

func TestMetadataCache_CachedNeverLoads(t *testing.T) {
	src := &fakeSource{specs: []model.InstrumentSpec{{Name: "USD_JPY", DisplayPrecision: 3}}}
	m := NewMetadataCache(src, MetadataConfig{}, nil)

	spec := m.Cached("USD_JPY")
	assert.Equal(t, model.DefaultDisplayPrecision, spec.DisplayPrecision)
	assert.Equal(t, 0, src.calls)

	m.Lookup(context.Background(), "USD_JPY")
	assert.Equal(t, 3, m.Cached("USD_JPY").DisplayPrecision)
	assert.Equal(t, 1, src.calls)
}

func TestMetadataCache_CachedDoesNotWaitForLoad(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewMetadataCache(src, MetadataConfig{}, nil)

	done := make(chan model.InstrumentSpec, 1)
	go func() { done <- m.Lookup(context.Background(), "USD_JPY") }()
	<-src.entered

	got := make(chan model.InstrumentSpec, 1)
	go func() { got <- m.Cached("USD_JPY") }()

	select {
	case spec := <-got:
		assert.Equal(t, model.DefaultDisplayPrecision, spec.DisplayPrecision)
	case <-time.After(time.Second):
		t.Fatal("Cached blocked behind a provider load")
	}

	close(src.release)
	assert.Equal(t, 3, (<-done).DisplayPrecision)
}
