// Package metrics exposes Prometheus collectors for the canvas server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsTotal    *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	snapshotsSent  prometheus.Counter
	strokesEvicted prometheus.Counter
	connections    prometheus.Gauge
	rooms          prometheus.Gauge
	slowClients    prometheus.Counter
	rateLimited    prometheus.Counter
}

// New registers the collectors on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events processed, by type",
		}, []string{"type"}),

		droppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Inbound events dropped, by type and error kind",
		}, []string{"type", "kind"}),

		snapshotsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_sent_total",
			Help:      "Full room_state snapshots emitted",
		}),

		strokesEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strokes_evicted_total",
			Help:      "Strokes evicted to keep rooms under the point cap",
		}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections",
		}),

		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms held in memory",
		}),

		slowClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_clients_dropped_total",
			Help:      "Connections closed because their send buffer filled up",
		}),

		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound messages rejected by the per-connection rate limit",
		}),
	}
}

func (m *Metrics) EventProcessed(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventDropped(eventType, kind string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(eventType, kind).Inc()
}

func (m *Metrics) SnapshotSent() {
	if m == nil {
		return
	}
	m.snapshotsSent.Inc()
}

func (m *Metrics) StrokesEvicted(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.strokesEvicted.Add(float64(n))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

func (m *Metrics) SlowClientDropped() {
	if m == nil {
		return
	}
	m.slowClients.Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
