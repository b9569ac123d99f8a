package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WalletOperations counts ledger operations by outcome.
	WalletOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Total number of wallet ledger operations",
		},
		[]string{"operation", "status"},
	)

	// GatewayCalls counts outbound payment-gateway requests by result.
	GatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Total number of outbound payment gateway calls",
		},
		[]string{"gateway", "call", "result"},
	)

	// WebhookEvents counts gateway webhook deliveries by result.
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of gateway webhook deliveries",
		},
		[]string{"result"},
	)

	// SweepRuns counts reconciliation sweep executions.
	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of pending-transaction sweep runs",
		},
		[]string{"status"},
	)

	// SweepResolved counts pending transactions settled by the sweep.
	SweepResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_resolved_total",
			Help: "Total number of pending transactions resolved by the sweep",
		},
		[]string{"outcome"},
	)

	// SweepDuration observes how long a full sweep pass takes.
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of pending-transaction sweep runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register installs all collectors on the default registry. Call once at
// startup; the /metrics route is mounted by the HTTP layer.
func Register() {
	prometheus.MustRegister(
		WalletOperations,
		GatewayCalls,
		WebhookEvents,
		SweepRuns,
		SweepResolved,
		SweepDuration,
	)
}
