package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feeds",
			Name:      "generations_total",
			Help:      "Total number of feed generations by terminal outcome.",
		},
		[]string{"feed_type", "format", "outcome"},
	)
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feeds",
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of a full generation run, claim to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"feed_type", "format"},
	)
	generationRows = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feeds",
			Name:      "generation_rows",
			Help:      "Rows exported per generation.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"feed_type"},
	)
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feeds",
			Name:      "deliveries_total",
			Help:      "Total number of delivery attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	busySkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feeds",
			Name:      "busy_skips_total",
			Help:      "Generations skipped because the feed already had one in flight.",
		},
	)
)
