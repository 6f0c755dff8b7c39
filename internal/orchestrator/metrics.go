package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Create call metrics
	createTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusterd",
			Subsystem: "orchestrator",
			Name:      "create_requests_total",
			Help:      "Total number of create calls by result",
		},
		[]string{"result"},
	)

	// State transition metrics
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusterd",
			Subsystem: "orchestrator",
			Name:      "state_transitions_total",
			Help:      "Total number of request state transitions by target state",
		},
		[]string{"state"},
	)

	// Reconciliation metrics
	reconcilePollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clusterd",
			Subsystem: "orchestrator",
			Name:      "reconcile_polls_total",
			Help:      "Total number of reconciliation polls by outcome",
		},
		[]string{"outcome"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clusterd",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of provider API calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"operation"},
	)

	activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clusterd",
			Subsystem: "orchestrator",
			Name:      "active_requests",
			Help:      "Number of requests not yet in a terminal state",
		},
	)
)

func init() {
	prometheus.MustRegister(
		createTotal,
		transitionsTotal,
		reconcilePollsTotal,
		providerCallDuration,
		activeRequests,
	)
}
