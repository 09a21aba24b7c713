package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_cache_lookups_total",
			Help: "Prompt cache lookups by result (hit, miss, untrusted).",
		},
		[]string{"result"},
	)
	cacheDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_cache_degraded_total",
			Help: "Cache operations served by the in-process fallback after a backend error.",
		},
		[]string{"op"},
	)
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_generations_total",
			Help: "SQL generations by outcome (generated, rejected, upstream_failed).",
		},
		[]string{"outcome"},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_generation_latency_ms",
			Help:    "Model round trip plus sanitization latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_executions_total",
			Help: "Executed queries by status (success, error).",
		},
		[]string{"status"},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askql_execution_latency_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	auditFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_audit_flushes_total",
			Help: "Audit batch uploads by status (ok, error).",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		cacheLookupsTotal,
		cacheDegradedTotal,
		generationsTotal,
		generationLatencyMs,
		executionsTotal,
		executionLatencyMs,
		auditFlushesTotal,
	)
}

func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

func IncrementCacheDegraded(op string) {
	cacheDegradedTotal.WithLabelValues(op).Inc()
}

func ObserveGeneration(outcome string, elapsed time.Duration) {
	generationsTotal.WithLabelValues(outcome).Inc()
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExecution(status string, elapsed time.Duration) {
	executionsTotal.WithLabelValues(status).Inc()
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveAuditFlush(status string) {
	auditFlushesTotal.WithLabelValues(status).Inc()
}
