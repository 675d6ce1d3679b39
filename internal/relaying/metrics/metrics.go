package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsObserved tracks raw events returned by polls
	EventsObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_events_observed_total",
			Help: "Total number of raw lock events observed",
		},
	)

	// EventsRelayed tracks events executed and committed
	EventsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_events_relayed_total",
			Help: "Total number of events relayed and committed",
		},
	)

	// EventsSkipped tracks skipped events by reason
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_events_skipped_total",
			Help: "Total number of events skipped",
		},
		[]string{"reason"},
	)

	// ExecuteFailures tracks relay executions that gave up
	ExecuteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_execute_failures_total",
			Help: "Total number of relay executions that failed after all attempts",
		},
	)

	// PollCycles tracks completed poll cycles
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_poll_cycles_total",
			Help: "Total number of poll cycles started",
		},
	)

	// DegradedTransitions tracks cycle-level failures
	DegradedTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relayer_degraded_total",
			Help: "Total number of transitions into the degraded state",
		},
	)

	// ExecuteLatency tracks relay execution latency
	ExecuteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relayer_execute_latency_seconds",
			Help:    "Relay execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ProcessedRecords tracks the durable store size
	ProcessedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayer_processed_records",
			Help: "Number of committed idempotency records",
		},
	)
)
