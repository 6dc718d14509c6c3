package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "price_streamer"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TicksPublished    *prometheus.CounterVec
	TicksSuppressed   prometheus.Counter
	MalformedEvents   *prometheus.CounterVec
	PublishFailures   prometheus.Counter
	CacheReconnects   prometheus.Counter
	Heartbeats        prometheus.Counter
	StreamReconnects  prometheus.Counter
	StreamState       prometheus.Gauge
	ActiveInstruments prometheus.Gauge
	BackfillRows      *prometheus.CounterVec
	ArchiveDropped    prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_published_total",
			Help:      "Ticks written to the cache",
		}, []string{"source"}),
		TicksSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_suppressed_total",
			Help:      "Live ticks dropped because the bid did not change",
		}),
		MalformedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Stream lines or candle rows that failed to normalize",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Cache writes that failed after one reconnect",
		}),
		CacheReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reconnects_total",
			Help:      "Cache reconnect attempts",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_heartbeats_total",
			Help:      "Heartbeats received on the price stream",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Price stream reconnects",
		}),
		StreamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_state",
			Help:      "Connector state: 0 disconnected, 1 connecting, 2 streaming, 3 error, 4 closed",
		}),
		ActiveInstruments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instruments",
			Help:      "Instruments in the active set",
		}),
		BackfillRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_rows_total",
			Help:      "Historical rows published per instrument",
		}, []string{"instrument"}),
		ArchiveDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_dropped_total",
			Help:      "Ticks dropped because the archive buffer was full",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TicksPublished,
			m.TicksSuppressed,
			m.MalformedEvents,
			m.PublishFailures,
			m.CacheReconnects,
			m.Heartbeats,
			m.StreamReconnects,
			m.StreamState,
			m.ActiveInstruments,
			m.BackfillRows,
			m.ArchiveDropped,
		)
	}

	return m
}

func (m *Metrics) TickPublished(source string) {
	if m == nil {
		return
	}
	m.TicksPublished.WithLabelValues(source).Inc()
}

func (m *Metrics) TickSuppressed() {
	if m == nil {
		return
	}
	m.TicksSuppressed.Inc()
}

func (m *Metrics) Malformed(kind string) {
	if m == nil {
		return
	}
	m.MalformedEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) CacheReconnected() {
	if m == nil {
		return
	}
	m.CacheReconnects.Inc()
}

func (m *Metrics) Heartbeat() {
	if m == nil {
		return
	}
	m.Heartbeats.Inc()
}

func (m *Metrics) StreamReconnected() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

func (m *Metrics) SetStreamState(state int) {
	if m == nil {
		return
	}
	m.StreamState.Set(float64(state))
}

func (m *Metrics) SetActiveInstruments(n int) {
	if m == nil {
		return
	}
	m.ActiveInstruments.Set(float64(n))
}

func (m *Metrics) BackfillPublished(instrument string, rows int) {
	if m == nil {
		return
	}
	m.BackfillRows.WithLabelValues(instrument).Add(float64(rows))
}

func (m *Metrics) ArchiveDrop() {
	if m == nil {
		return
	}
	m.ArchiveDropped.Inc()
}
