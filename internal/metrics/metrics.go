// Package metrics registers the gateway's prometheus collectors. Collectors
// are package-level so every layer can record without plumbing a registry
// through constructors; they are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksEnqueued counts tasks accepted onto a queue, by queue name.
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgate_tasks_enqueued_total",
		Help: "Number of tasks enqueued, by queue.",
	}, []string{"queue"})

	// MailDelivered counts successful deliveries, by transport.
	MailDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailgate_mail_delivered_total",
		Help: "Number of envelopes delivered, by transport.",
	}, []string{"transport"})

	// FallbackDeliveries counts deliveries that only succeeded via the
	// fallback transport.
	FallbackDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailgate_fallback_deliveries_total",
		Help: "Number of envelopes delivered by the fallback transport after a primary failure.",
	})

	// RetriesScheduled counts re-enqueues performed by the retry scheduler.
	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailgate_retries_scheduled_total",
		Help: "Number of delivery retries scheduled.",
	})

	// DeadLettered counts envelopes routed to the error queue after
	// exhausting their retry budget.
	DeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailgate_dead_lettered_total",
		Help: "Number of envelopes routed to the dead-letter queue.",
	})

	// DeliveryDuration observes the duration of individual transport calls.
	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailgate_delivery_duration_seconds",
		Help:    "Duration of transport delivery calls, by transport.",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})
)
