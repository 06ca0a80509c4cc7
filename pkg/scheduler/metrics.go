package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pbftbridge_build_duration_seconds",
		Help:    "Time spent producing one payload, initialize through finalize.",
		Buckets: prometheus.DefBuckets,
	})

	buildFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbftbridge_build_failures_total",
		Help: "Number of payload builds that did not produce a payload.",
	})

	backlogDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pbftbridge_backlog_depth",
		Help: "Production attempts waiting in the backlog.",
	})

	droppedAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pbftbridge_dropped_attempts_total",
		Help: "Production attempts dropped because the backlog was full.",
	})
)
