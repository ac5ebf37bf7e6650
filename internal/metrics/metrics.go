// Package metrics registers the Prometheus metrics used by the idempotency
// gateway. Import this package (via blank import) from the server entry
// point to register all metrics before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request-level counters and histograms.
var (
	// RequestsTotal counts coordinator executions labelled by outcome
	// ("fresh", "cached", "conflict", "error").
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idemgw_requests_total",
			Help: "Total number of idempotent requests processed.",
		},
		[]string{"outcome"},
	)

	// RequestDuration observes end-to-end coordinator latency in seconds.
	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idemgw_request_duration_seconds",
			Help:    "End-to-end request duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// CacheHits counts replayed responses by serving layer ("local", "store").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idemgw_cache_hits_total",
			Help: "Total cached responses served, by cache layer.",
		},
		[]string{"layer"},
	)

	// InProgressConflicts counts requests that found another caller's
	// in-progress record, labelled by resolution ("failed", "waited").
	InProgressConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idemgw_inprogress_conflicts_total",
			Help: "Total duplicate requests that hit an in-progress record.",
		},
		[]string{"resolution"},
	)

	// StoreErrors counts record store failures by operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idemgw_store_errors_total",
			Help: "Total record store errors by operation.",
		},
		[]string{"op"},
	)
)
