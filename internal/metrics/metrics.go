package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters exposed at /metrics.
type Metrics struct {
	PollPasses         prometheus.Counter
	ExecutionsFired    prometheus.Counter
	ExecutionFailures  prometheus.Counter
	IntakeFindings     prometheus.Counter
	ThreatsByTier      *prometheus.CounterVec
	AlertsSent         prometheus.Counter
	DeliveryFailures   prometheus.Counter
	ContainmentActions prometheus.Counter
	StorageFailures    prometheus.Counter
}

// New registers the service counters on the default registry.
func New() *Metrics {
	return &Metrics{
		PollPasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_poll_passes_total",
			Help: "Schedule poll passes completed.",
		}),
		ExecutionsFired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_executions_fired_total",
			Help: "Scheduled agent executions fired.",
		}),
		ExecutionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_execution_failures_total",
			Help: "Agent executions that failed or timed out.",
		}),
		IntakeFindings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_intake_findings_total",
			Help: "Findings consumed from the detector intake.",
		}),
		ThreatsByTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "threatrelay_threats_total",
			Help: "Threats handled, by escalation tier.",
		}, []string{"tier"}),
		AlertsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_alerts_sent_total",
			Help: "Alerts accepted by at least one sink.",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_alert_delivery_failures_total",
			Help: "Alerts that no sink accepted.",
		}),
		ContainmentActions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_containment_actions_total",
			Help: "Containment actions executed in active mode.",
		}),
		StorageFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "threatrelay_storage_failures_total",
			Help: "Record store write failures.",
		}),
	}
}
