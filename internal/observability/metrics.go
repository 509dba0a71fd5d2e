package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects gateway metrics.
//
// Tracked series:
//   - connection and online-user gauges for capacity planning
//   - inbound events by name and outcome
//   - outbound deliveries and queue drops
//   - active call sessions
//   - store call latency
type Metrics struct {
	// ActiveConnections gauges currently open gateway connections.
	ActiveConnections prometheus.Gauge

	// OnlineUsers gauges users with at least one connection.
	OnlineUsers prometheus.Gauge

	// InboundEvents counts client events by name and status (ok|error).
	InboundEvents *prometheus.CounterVec

	// EventsDelivered counts outbound events enqueued per event name.
	EventsDelivered *prometheus.CounterVec

	// EventsDropped counts outbound events dropped by the per-connection
	// queue, per event name.
	EventsDropped *prometheus.CounterVec

	// ActiveCalls gauges in-flight call signaling sessions.
	ActiveCalls prometheus.Gauge

	// StoreDuration measures message/call store latency in seconds.
	// Labels: store (message|call), op.
	StoreDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates metrics registered on a private registry. Use Registry
// to expose them.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return newMetrics(reg)
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "haven_gateway_connections",
			Help: "Currently open gateway connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "haven_gateway_online_users",
			Help: "Users with at least one active connection.",
		}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_gateway_inbound_events_total",
			Help: "Inbound client events by name and status.",
		}, []string{"event", "status"}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_gateway_events_delivered_total",
			Help: "Outbound events enqueued for delivery.",
		}, []string{"event"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_gateway_events_dropped_total",
			Help: "Outbound events dropped due to full connection queues.",
		}, []string{"event"}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "haven_gateway_active_calls",
			Help: "In-flight call signaling sessions.",
		}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "haven_store_duration_seconds",
			Help:    "Durable store call latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"store", "op"}),
	}
	m.registry = reg
	return m
}

// Registry returns the Prometheus registry holding these metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
