package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages materialized into the outbox, partitioned by outcome
	messagesMaterialized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_messages_materialized_total",
			Help: "Messages created during campaign materialization",
		},
		[]string{"outcome"}, // created, duplicate, failed
	)

	// Scheduler jobs submitted, partitioned by job kind
	schedulerJobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_submitted_total",
			Help: "Jobs submitted to the external scheduler",
		},
		[]string{"kind", "outcome"}, // kind: message, batch_activation; outcome: ok, error
	)

	// Scheduler jobs cancelled during cascading cancellation
	schedulerJobsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_cancelled_total",
			Help: "Jobs cancelled at the external scheduler",
		},
		[]string{"outcome"}, // ok, already_fired, error
	)

	// Batch activations, partitioned by batch mode
	batchesActivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_batches_activated_total",
			Help: "Batches activated by scheduler callbacks",
		},
		[]string{"mode"}, // static, dynamic
	)

	// Contact resolutions during inbound ingestion
	contactsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contacts_resolved_total",
			Help: "Contact lookups by phone variation",
		},
		[]string{"outcome"}, // matched, created, resurrected
	)

	// Materialization duration per batch
	materializationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_materialization_duration_seconds",
			Help:    "Time spent materializing a single batch",
			Buckets: prometheus.DefBuckets,
		},
	)
)
