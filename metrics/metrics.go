// Package metrics holds the Prometheus instrumentation of the escalation
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the engine's counters and gauges.
type Metrics struct {
	AlertsInserted prometheus.Counter
	Escalations    *prometheus.CounterVec
	Acks           prometheus.Counter
	AdapterErrors  *prometheus.CounterVec
	PendingAlerts  prometheus.Gauge
}

// New registers the engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AlertsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_alerts_inserted_total",
			Help: "Alerts accepted from the webhook.",
		}),
		Escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_escalations_total",
			Help: "Escalation notifications dispatched, by tier.",
		}, []string{"level"}),
		Acks: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchtower_acks_total",
			Help: "Successful alert acknowledgements.",
		}),
		AdapterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchtower_adapter_errors_total",
			Help: "Failed adapter calls, by adapter.",
		}, []string{"adapter"}),
		PendingAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchtower_pending_alerts",
			Help: "Currently unacknowledged alerts.",
		}),
	}
}
