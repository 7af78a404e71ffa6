// Package metrics provides optional Prometheus instrumentation for a
// connection. It is entirely additive: a Conn that never asks for
// metrics never touches this package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges exported for one connection.
// Use New to register them against a registry (with nil they are
// created but registered nowhere).
type Metrics struct {
	FramesSent          prometheus.Counter
	FramesReceived      prometheus.Counter
	Reconnects          prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
}

// New registers and returns a fresh set of metrics labeled with name,
// which distinguishes multiple connections sharing a registry (e.g.
// "orders", "audit-log"). Registering the same name twice against the
// same registerer panics, matching promauto's own behavior.
func New(registerer prometheus.Registerer, name string) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gostomp",
			Subsystem: name,
			Name:      "frames_sent_total",
			Help:      "Total number of STOMP frames sent to the broker.",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gostomp",
			Subsystem: name,
			Name:      "frames_received_total",
			Help:      "Total number of STOMP frames received from the broker.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gostomp",
			Subsystem: name,
			Name:      "reconnects_total",
			Help:      "Total number of times the connection re-established its session.",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gostomp",
			Subsystem: name,
			Name:      "active_subscriptions",
			Help:      "Current number of open subscriptions.",
		}),
	}
}
