package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeHandled   = "handled"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeMalformed = "malformed"
	outcomeFailed    = "failed"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_published_total",
		Help: "Events handed to the broker, by topic and result.",
	}, []string{"topic", "result"})

	publishRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_publish_retries_total",
		Help: "Publish attempts that failed and were retried.",
	}, []string{"topic"})

	consumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_events_consumed_total",
		Help: "Consumed events, by topic and outcome.",
	}, []string{"topic", "outcome"})

	handleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_event_handle_duration_seconds",
		Help:    "Time spent handling one event, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)
