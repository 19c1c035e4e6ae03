package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	producerPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_messages_published_total",
		Help: "Events written to the broker.",
	}, []string{"topic"})

	producerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_publish_errors_total",
		Help: "Failed publish attempts.",
	}, []string{"topic"})

	consumerProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_processed_total",
		Help: "Messages handled successfully.",
	}, []string{"topic", "consumer_group"})

	consumerFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_failed_total",
		Help: "Messages that exhausted handler retries.",
	}, []string{"topic", "consumer_group"})

	consumerDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_duplicate_total",
		Help: "Messages skipped by the idempotency guard.",
	}, []string{"event_type"})

	consumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_consumer_processing_duration_seconds",
		Help:    "Handler execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic", "consumer_group"})
)
