// Package metrics holds the Prometheus collectors exported by cp-server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger
	DeductionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepilot_deductions_total",
			Help: "Credit deductions by outcome",
		},
		[]string{"outcome"},
	)

	CreditsSpentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepilot_credits_spent_total",
			Help: "Credits spent per tool",
		},
		[]string{"tool"},
	)

	BestEffortFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codepilot_best_effort_failures_total",
			Help: "Failed non-authoritative writes by target",
		},
		[]string{"target"},
	)

	// Sessions and change feed
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codepilot_active_sessions",
			Help: "Number of live account sessions",
		},
	)

	ChangefeedDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codepilot_changefeed_dropped_total",
			Help: "Changes dropped because a subscriber was not keeping up",
		},
	)

	// RPC
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codepilot_rpc_duration_seconds",
			Help:    "gRPC handler latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)
)

// Deduction outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeNoProfile    = "no_profile"
	OutcomeInsufficient = "insufficient"
	OutcomeFailed       = "failed"
)

// Best-effort write targets.
const (
	TargetMirror   = "mirror"
	TargetActivity = "activity"
	TargetUsage    = "usage"
	TargetFeed     = "feed"
)

// RecordDeduction counts a deduction attempt and, on success, the credits it spent.
func RecordDeduction(outcome, tool string, cost int) {
	DeductionsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		CreditsSpentTotal.WithLabelValues(tool).Add(float64(cost))
	}
}

// RecordBestEffortFailure counts a swallowed write failure.
func RecordBestEffortFailure(target string) {
	BestEffortFailuresTotal.WithLabelValues(target).Inc()
}

// RecordRPC observes one RPC.
func RecordRPC(method, code string, seconds float64) {
	RPCDuration.WithLabelValues(method, code).Observe(seconds)
}
