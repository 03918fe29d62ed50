package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nile_shop"

// Metrics aggregates the service's Prometheus collectors.
type Metrics struct {
	DepositsInitiated     prometheus.Counter
	ReconciliationsTotal  *prometheus.CounterVec
	PurchasesTotal        *prometheus.CounterVec
	LedgerConflictsTotal  prometheus.Counter
	GatewayVerifyDuration *prometheus.HistogramVec
}

// New registers the service collectors against the given registerer. Tests
// pass a fresh prometheus.NewRegistry to avoid global-state collisions.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DepositsInitiated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "deposits_initiated_total",
			Help:      "Total deposit transactions opened pending gateway checkout.",
		}),
		ReconciliationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "reconciliations_total",
			Help:      "Total reconciliation attempts partitioned by outcome.",
		}, []string{"outcome"}),
		PurchasesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "purchases_total",
			Help:      "Total wallet purchase attempts partitioned by result.",
		}, []string{"result"}),
		LedgerConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "conflicts_total",
			Help:      "Optimistic-concurrency conflicts observed while applying outcomes.",
		}),
		GatewayVerifyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "verify_duration_seconds",
			Help:      "Latency of gateway verification calls partitioned by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}
