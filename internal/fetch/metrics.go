package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// totalRequests tracks logical fetch requests entering the layer.
	totalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_requests_total",
		Help: "The total number of logical fetch requests.",
	})
	// totalAttempts tracks individual executed attempts, including retries.
	totalAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_attempts_total",
		Help: "The total number of executed fetch attempts.",
	})
	// attemptOutcomes counts classified attempt outcomes by status.
	attemptOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_attempt_outcomes_total",
		Help: "Executed attempt outcomes by classification.",
	}, []string{"status"})
	// totalCacheFallbacks counts requests answered from the fallback cache.
	totalCacheFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_cache_fallbacks_total",
		Help: "The total number of requests served from the fallback cache.",
	})
	// totalStaleResults counts fallback payloads past their expiry horizon.
	totalStaleResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_stale_results_total",
		Help: "The total number of stale cache payloads served.",
	})
	// totalNoIdentity counts requests that timed out waiting for an identity.
	totalNoIdentity = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetch_no_identity_total",
		Help: "The total number of requests that found no eligible identity before their deadline.",
	})
)
