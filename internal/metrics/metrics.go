package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collab"

// Metrics collects realtime collaboration metrics. All methods are safe to
// call on a nil receiver so components can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	connections  prometheus.Gauge
	rooms        prometheus.Gauge
	joins        prometheus.Counter
	denials      *prometheus.CounterVec
	broadcasts   *prometheus.CounterVec
	droppedSends prometheus.Counter
}

// New creates a metrics set on its own registry, including Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of live websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of documents with at least one joined connection.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Number of admitted document joins.",
		}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "denials_total",
			Help:      "Number of rejected requests by kind.",
		}, []string{"kind"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Number of events delivered to connections by event name.",
		}, []string{"event"}),
		droppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_sends_total",
			Help:      "Number of events that could not be queued for a connection.",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.rooms,
		m.joins,
		m.denials,
		m.broadcasts,
		m.droppedSends,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetActive(connections, rooms int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(connections))
	m.rooms.Set(float64(rooms))
}

func (m *Metrics) IncJoin() {
	if m == nil {
		return
	}
	m.joins.Inc()
}

func (m *Metrics) IncDenial(kind string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddDeliveries(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.broadcasts.WithLabelValues(event).Add(float64(n))
}

func (m *Metrics) IncDroppedSend() {
	if m == nil {
		return
	}
	m.droppedSends.Inc()
}
