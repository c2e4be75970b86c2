package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GateDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_gate_decision_total",
			Help: "Count of security gate outcomes per stage",
		},
		[]string{"outcome"},
	)
	GateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_gate_duration_seconds",
			Help:    "Latency of gated request handling",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_failures_total",
			Help: "Credential verification failures by category",
		},
		[]string{"reason"},
	)
	RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)
	SessionsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_sessions_issued_total",
			Help: "Admin session tokens minted",
		},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"upstream"},
	)
	BreakerOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_breaker_opens_total",
			Help: "Circuit breaker open transitions",
		},
		[]string{"upstream"},
	)
	CatalogCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_cache_total",
			Help: "Catalog list cache lookups",
		},
		[]string{"result"},
	)
	BuildInfo = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "storefront_build_info",
			Help:        "Build info gauge with const labels",
			ConstLabels: prometheus.Labels{"version": "0.1.0"},
		},
	)
)

func MustRegister() {
	prometheus.MustRegister(GateDecision, GateDuration, AuthFailures, RateLimitHits, SessionsIssued, BreakerState, BreakerOpens, CatalogCache, BuildInfo)
}
