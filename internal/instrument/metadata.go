package instrument

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/price-streamer/internal/model"
)

// SpecSource loads instrument conventions from the provider.
type SpecSource interface {
	InstrumentSpecs(ctx context.Context) ([]model.InstrumentSpec, error)
}

// MetadataConfig holds the fallback conventions and per-instrument pip scale
// overrides.
type MetadataConfig struct {
	DefaultPrecision int
	DefaultPipScale  int64
	PipScales        map[string]int64
	RetryInterval    time.Duration // Minimum gap between failed loads
}

// MetadataCache resolves InstrumentSpecs, loading provider metadata once
// and keeping it for the process lifetime.
type MetadataCache struct {
	source SpecSource
	cfg    MetadataConfig
	logger *slog.Logger

	loadMu sync.Mutex // held across provider calls

	mu         sync.RWMutex
	specs      map[string]model.InstrumentSpec
	loaded     bool
	lastFailAt time.Time
	now        func() time.Time
}

// NewMetadataCache creates a MetadataCache. A nil source always yields
// defaults.
func NewMetadataCache(source SpecSource, cfg MetadataConfig, logger *slog.Logger) *MetadataCache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPrecision <= 0 {
		cfg.DefaultPrecision = model.DefaultDisplayPrecision
	}
	if cfg.DefaultPipScale <= 0 {
		cfg.DefaultPipScale = model.DefaultPipScale
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}

	return &MetadataCache{
		source: source,
		cfg:    cfg,
		logger: logger.With("component", "instrument_metadata"),
		specs:  make(map[string]model.InstrumentSpec),
		now:    time.Now,
	}
}

// Lookup returns the spec for name, loading provider metadata first if it
// is not loaded yet. Lookup never fails: on any load error the configured
// defaults apply. Pip scale resolves as config override, then provider pip
// location, then default.
func (m *MetadataCache) Lookup(ctx context.Context, name string) model.InstrumentSpec {
	m.ensureLoaded(ctx)
	return m.Cached(name)
}

// Cached returns the spec for name from metadata already loaded. It never
// calls the provider and does not wait for a load in progress.
func (m *MetadataCache) Cached(name string) model.InstrumentSpec {
	m.mu.RLock()
	spec, ok := m.specs[name]
	m.mu.RUnlock()

	if !ok {
		spec = model.InstrumentSpec{
			Name:             name,
			DisplayPrecision: m.cfg.DefaultPrecision,
			PipScale:         decimal.NewFromInt(m.cfg.DefaultPipScale),
		}
	}
	if scale, ok := m.cfg.PipScales[name]; ok && scale > 0 {
		spec.PipScale = decimal.NewFromInt(scale)
	}
	return spec
}

// Refresh forces a reload of provider metadata.
func (m *MetadataCache) Refresh(ctx context.Context) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.load(ctx)
}

// Len returns the number of instruments with provider metadata.
func (m *MetadataCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.specs)
}

func (m *MetadataCache) ensureLoaded(ctx context.Context) {
	if m.source == nil {
		return
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.RLock()
	skip := m.loaded || (!m.lastFailAt.IsZero() && m.now().Sub(m.lastFailAt) < m.cfg.RetryInterval)
	m.mu.RUnlock()
	if skip {
		return
	}

	if err := m.load(ctx); err != nil {
		m.logger.Warn("instrument metadata unavailable, using defaults",
			"error", err,
			"default_precision", m.cfg.DefaultPrecision,
		)
	}
}

// load calls the provider; loadMu must be held.
func (m *MetadataCache) load(ctx context.Context) error {
	if m.source == nil {
		return nil
	}

	specs, err := m.source.InstrumentSpecs(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.lastFailAt = m.now()
		return err
	}

	for _, s := range specs {
		if s.PipScale.IsZero() {
			s.PipScale = decimal.NewFromInt(m.cfg.DefaultPipScale)
		}
		m.specs[s.Name] = s
	}
	m.loaded = true
	m.lastFailAt = time.Time{}

	m.logger.Info("instrument metadata loaded", "instruments", len(specs))
	return nil
}
