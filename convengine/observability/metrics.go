// Package observability provides Prometheus metrics instrumentation for the
// conversation engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// TURN METRICS
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promoflow_turns_total",
			Help: "Total number of processed conversation turns",
		},
		[]string{"handler", "stage", "status"}, // status: success, error, terminated
	)

	turnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promoflow_turn_duration_seconds",
			Help:    "Turn processing duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"handler"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promoflow_stage_transitions_total",
			Help: "Total number of stage transitions",
		},
		[]string{"from", "to"},
	)

	forcedAdvancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promoflow_forced_advances_total",
			Help: "Total number of forced stage advances",
		},
		[]string{"stage", "trigger"}, // trigger: hard_cap, heuristic, feedback_cap, guard
	)
)

// =============================================================================
// ROUTING METRICS
// =============================================================================

var routingDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "promoflow_routing_decisions_total",
		Help: "Total number of session routing decisions",
	},
	[]string{"handler", "method", "priority"}, // method: explicit, keyword, classifier, fallback
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promoflow_llm_calls_total",
			Help: "Total number of language model calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error, timeout, cached
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promoflow_llm_duration_seconds",
			Help:    "Language model call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "model"},
	)
)

// =============================================================================
// HTTP METRICS
// =============================================================================

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promoflow_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promoflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 30},
		},
		[]string{"route"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordTurn records turn processing metrics.
func RecordTurn(handler, stage, status string, durationMS int) {
	turnsTotal.WithLabelValues(handler, stage, status).Inc()
	turnDurationSeconds.WithLabelValues(handler).Observe(float64(durationMS) / 1000.0)
}

// RecordStageTransition records a stage transition.
func RecordStageTransition(from, to string) {
	stageTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordForcedAdvance records a forced advance and which safety net fired.
func RecordForcedAdvance(stage, trigger string) {
	forcedAdvancesTotal.WithLabelValues(stage, trigger).Inc()
}

// RecordRoutingDecision records a query-router decision.
func RecordRoutingDecision(handler, method, priority string) {
	routingDecisionsTotal.WithLabelValues(handler, method, priority).Inc()
}

// RecordLLMCall records language model call metrics.
func RecordLLMCall(provider, model, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmDurationSeconds.WithLabelValues(provider, model).Observe(float64(durationMS) / 1000.0)
}

// RecordHTTPRequest records HTTP request metrics.
func RecordHTTPRequest(route, status string, durationMS int) {
	httpRequestsTotal.WithLabelValues(route, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(route).Observe(float64(durationMS) / 1000.0)
}
