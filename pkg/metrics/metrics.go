// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// AIReplyDuration tracks AI responder latency by outcome (ok, error, timeout).
	AIReplyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_reply_duration_seconds",
			Help:    "AI responder call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"platform", "outcome"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// HandoffsTotal counts positive handoff detections.
	HandoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoffs_total",
			Help: "Handoff detections by reason and whether they changed control",
		},
		[]string{"reason", "platform", "acted"},
	)

	// ControlTransitionsTotal counts control-mode transitions.
	ControlTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "control_transitions_total",
			Help: "Control-mode transitions by kind",
		},
		[]string{"transition"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"platform"},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"platform", "sender"},
	)

	// LiveSubscribers tracks open live-channel subscriptions.
	LiveSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_subscribers",
			Help: "Open live-channel subscriptions",
		},
		[]string{"scope"},
	)

	// LiveEventsDropped counts events dropped for slow subscribers.
	LiveEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "live_events_dropped_total",
			Help: "Live events dropped because a subscriber buffer was full",
		},
	)

	// SideEffectFailures counts best-effort failures (broadcast, alert, audit).
	SideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Best-effort side effects that failed",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records token usage for an LLM call.
func RecordLLMCall(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordAIReply records one AI responder call.
func RecordAIReply(platform, outcome string, duration float64) {
	AIReplyDuration.WithLabelValues(platform, outcome).Observe(duration)
}

// LiveSubscribed adjusts the subscriber gauge for scope by delta.
func LiveSubscribed(scope string, delta float64) {
	LiveSubscribers.WithLabelValues(scope).Add(delta)
}
