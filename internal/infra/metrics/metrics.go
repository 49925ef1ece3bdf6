// Package metrics exposes the Prometheus collectors of the wallet core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpay_provider_calls_total",
			Help: "Calls to external providers by operation and normalized outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	providerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retailpay_provider_call_duration_seconds",
			Help:    "Duration of provider calls including retries",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "operation"},
	)

	orderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpay_orders_total",
			Help: "Orders reaching a state, by kind and payment method",
		},
		[]string{"kind", "method", "status"},
	)

	reconcileDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retailpay_reconcile_decisions_total",
			Help: "Reconciliation results by entity and decision",
		},
		[]string{"entity", "decision"},
	)
)

func ObserveProviderCall(provider, operation, outcome string, started time.Time) {
	providerCalls.WithLabelValues(provider, operation, outcome).Inc()
	providerLatency.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

func OrderState(kind, method, status string) {
	orderOutcomes.WithLabelValues(kind, method, status).Inc()
}

func ReconcileDecision(entity, decision string) {
	reconcileDecisions.WithLabelValues(entity, decision).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
