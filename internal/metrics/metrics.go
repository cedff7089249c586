// Package metrics exports Prometheus metrics for the dialout engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A registry is
// injected so tests can use an isolated one.
type Metrics struct {
	CallsTotal       *prometheus.CounterVec
	CallsActive      prometheus.Gauge
	CallDuration     prometheus.Histogram
	RegisterAttempts prometheus.Counter
	Registered       prometheus.Gauge
	ResponsesDropped prometheus.Counter
	DTMFSent         prometheus.Counter
}

// New registers and returns the dialout metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dialout",
			Subsystem: "calls",
			Name:      "total",
			Help:      "Outbound calls by final outcome",
		}, []string{"outcome"}),
		CallsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dialout",
			Subsystem: "calls",
			Name:      "active",
			Help:      "Calls currently in a non-terminal state",
		}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dialout",
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Call duration from INVITE to termination",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		RegisterAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dialout",
			Subsystem: "registration",
			Name:      "attempts_total",
			Help:      "REGISTER attempts sent, excluding digest retries",
		}),
		Registered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dialout",
			Subsystem: "registration",
			Name:      "up",
			Help:      "1 when the account is registered, 0 otherwise",
		}),
		ResponsesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dialout",
			Subsystem: "router",
			Name:      "responses_dropped_total",
			Help:      "Responses dropped for lack of a matching call",
		}),
		DTMFSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dialout",
			Subsystem: "calls",
			Name:      "dtmf_sent_total",
			Help:      "INFO dtmf-relay requests sent",
		}),
	}
}
