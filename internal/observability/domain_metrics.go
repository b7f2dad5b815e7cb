package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_resolve_total",
			Help: "Single-request resolutions by outcome (validated, failed).",
		},
		[]string{"outcome"},
	)
	resolveAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_resolve_attempts",
			Help:    "Generate/validate cycles used per resolution.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
	oracleCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_oracle_calls_total",
			Help: "Language model calls by role and status.",
		},
		[]string{"role", "status"},
	)
	oracleLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querypilot_oracle_latency_ms",
			Help:    "Language model call latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"role"},
	)
	safetyRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_safety_rejections_total",
			Help: "SQL statements rejected by the safety gate, by rule.",
		},
		[]string{"rule"},
	)
	decompositionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_decompositions_total",
			Help: "Complex request splits by the tier that produced them (oracle, deterministic, identity).",
		},
		[]string{"tier"},
	)
	combinationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_combinations_total",
			Help: "Multi-part result combinations by outcome.",
		},
		[]string{"outcome"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_query_executions_total",
			Help: "Executed SQL statements by status.",
		},
		[]string{"status"},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_query_latency_ms",
			Help:    "Executed SQL latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		resolveTotal,
		resolveAttempts,
		oracleCallsTotal,
		oracleLatencyMs,
		safetyRejectionsTotal,
		decompositionsTotal,
		combinationsTotal,
		queryExecutionsTotal,
		queryLatencyMs,
	)
}

func ObserveResolve(validated bool, attempts int) {
	outcome := "failed"
	if validated {
		outcome = "validated"
	}
	resolveTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		resolveAttempts.Observe(float64(attempts))
	}
}

func ObserveOracleCall(role string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	oracleCallsTotal.WithLabelValues(role, status).Inc()
	oracleLatencyMs.WithLabelValues(role).Observe(float64(elapsed.Milliseconds()))
}

func IncrementSafetyRejection(rule string) {
	safetyRejectionsTotal.WithLabelValues(rule).Inc()
}

func IncrementDecomposition(tier string) {
	decompositionsTotal.WithLabelValues(tier).Inc()
}

func IncrementCombination(possible bool) {
	outcome := "impossible"
	if possible {
		outcome = "combined"
	}
	combinationsTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueryExecution(err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
}
