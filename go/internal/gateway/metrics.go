package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the hub's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections    prometheus.Gauge
	rooms          prometheus.Gauge
	deliveredTotal *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
}

// NewMetrics registers the hub collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pokerleague",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pokerleague",
			Subsystem: "gateway",
			Name:      "rooms",
			Help:      "Session rooms with at least one viewer.",
		}),
		deliveredTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokerleague",
			Subsystem: "gateway",
			Name:      "messages_delivered_total",
			Help:      "Messages queued to viewers, by event type.",
		}, []string{"type"}),
		droppedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pokerleague",
			Subsystem: "gateway",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) connected() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) roomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) roomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) delivered(eventType string) {
	if m != nil {
		m.deliveredTotal.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.droppedTotal.WithLabelValues(reason).Inc()
	}
}
