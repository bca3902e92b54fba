package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_events_total",
			Help: "Total number of events received",
		},
		[]string{"status"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_events_rejected_total",
			Help: "Total number of events rejected at normalization",
		},
		[]string{"reason"},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detect_evaluation_duration_seconds",
			Help:    "Duration of per-event rule evaluation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvaluationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_evaluation_errors_total",
			Help: "Total number of per-rule evaluation failures",
		},
	)

	// Finding metrics
	FindingsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_findings_emitted_total",
			Help: "Total number of findings emitted",
		},
		[]string{"rule_id", "severity"},
	)

	MatchesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_matches_suppressed_total",
			Help: "Total number of rule matches suppressed",
		},
		[]string{"rule_id", "reason"},
	)

	EscalationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_escalation_failures_total",
			Help: "Total number of failed case-management escalations",
		},
	)

	// Shared-state gauges
	MatchStateBuffers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detect_match_state_buffers",
			Help: "Number of active sequence match-state buffers",
		},
	)

	SuppressionEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "detect_suppression_entries",
			Help: "Number of entries in the suppression store",
		},
	)

	// Context provider metrics
	ContextFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detect_context_fetch_duration_seconds",
			Help:    "Duration of context provider fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContextFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_context_fetch_errors_total",
			Help: "Total number of context provider fetch failures",
		},
	)

	// Back-pressure metrics
	BackpressureRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_backpressure_rejections_total",
			Help: "Total number of batches rejected due to per-tenant worker caps",
		},
		[]string{"tenant"},
	)
)
