package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stageflow_queue_events_total",
			Help: "Queue items resolved per tick by outcome",
		},
		[]string{"outcome"}, // completed, released
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stageflow_queue_events_dropped_total",
			Help: "Queue items completed without evaluation by reason",
		},
		[]string{"reason"}, // malformed, unknown_type
	)

	RunsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stageflow_runs_created_total",
			Help: "Runs materialized from matched triggers",
		},
		[]string{"workspace_id"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stageflow_tick_duration_seconds",
			Help:    "Wall-clock duration of one consumer tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stageflow_queue_depth",
			Help: "Unprocessed items in the automation event queue",
		},
	)

	StepsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stageflow_steps_dispatched_total",
			Help: "Run steps exported to the step topic by result",
		},
		[]string{"result"}, // published, dlq
	)
)
