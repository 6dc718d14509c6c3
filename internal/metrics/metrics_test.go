package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TickPublished("live")
	m.TickSuppressed()
	m.Malformed("stream")
	m.PublishFailed()
	m.CacheReconnected()
	m.Heartbeat()
	m.StreamReconnected()
	m.SetStreamState(2)
	m.SetActiveInstruments(3)
	m.BackfillPublished("EUR_USD", 10)
	m.ArchiveDrop()
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TickPublished("live")
	m.TickPublished("live")
	m.TickPublished("historical")
	m.TickSuppressed()
	m.SetActiveInstruments(4)
	m.BackfillPublished("EUR_USD", 25)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksPublished.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksPublished.WithLabelValues("historical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksSuppressed))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ActiveInstruments))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.BackfillRows.WithLabelValues("EUR_USD")))
}

func TestServerRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Heartbeat()

	healthy := true
	health := func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("redis down")
	}
	s := NewServer(ServerConfig{Port: 0}, reg, health, func() []string { return []string{"EUR_USD", "USD_CAD"} }, nil)
	h := s.Routes()

	t.Run("health ok", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("health failing", func(t *testing.T) {
		healthy = false
		defer func() { healthy = true }()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "redis down")
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "price_streamer_stream_heartbeats_total 1"))
	})

	t.Run("debug instruments", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/instruments", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Active []string `json:"active_instruments"`
			Count  int      `json:"instrument_count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []string{"EUR_USD", "USD_CAD"}, body.Active)
		assert.Equal(t, 2, body.Count)
	})
}
