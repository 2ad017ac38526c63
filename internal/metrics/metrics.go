package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorcore_requests_total",
			Help: "Total number of tutoring requests",
		},
		[]string{"intent", "outcome"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutorcore_provider_calls_total",
			Help: "Total number of capability provider invocations",
		},
		[]string{"capability", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "tutorcore_provider_latency_seconds",
			Help: "Capability provider invocation latency in seconds",
		},
		[]string{"capability"},
	)

	DegradedReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutorcore_degraded_replies_total",
			Help: "Total number of degraded replies returned",
		},
	)

	TurnsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutorcore_turns_total",
			Help: "Total number of turns appended to sessions",
		},
	)
)
