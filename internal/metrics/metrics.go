// Package metrics exposes the engine's Prometheus instruments
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts events accepted by the publisher
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_published_total",
		Help: "Total number of events published into the engine.",
	})

	// AttemptsEnqueued counts delivery attempts pushed onto the queue
	AttemptsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_delivery_attempts_enqueued_total",
		Help: "Total number of delivery attempts enqueued.",
	})

	// Deliveries counts dispatch outcomes by class
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Total number of delivery dispatches by outcome.",
	}, []string{"outcome"})

	// RetriesScheduled counts attempts handed to the retry scheduler
	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_retries_scheduled_total",
		Help: "Total number of delivery attempts scheduled for retry.",
	})

	// QueueDepth tracks the number of attempts waiting in the delivery queue
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webhook_delivery_queue_depth",
		Help: "Current number of attempts waiting in the delivery queue.",
	})

	// DeliveryDuration observes outbound HTTP dispatch latency
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Latency of outbound webhook dispatches.",
		Buckets: prometheus.DefBuckets,
	})
)
