package utils

import (
	"time"
)

// Materialization constants
const (
	// MaterializationChunkSize bounds concurrent per-recipient work within a batch
	MaterializationChunkSize = 50

	// DefaultBatchSize is the number of recipients per static batch
	DefaultBatchSize = 200

	// DefaultMaterializationHorizon is how far ahead of run_at a batch is
	// materialized immediately instead of waiting for the scheduler callback
	DefaultMaterializationHorizon = 10 * time.Minute
)

// Contact resolution constants
const (
	// ContactLockTTL is the lifetime of the best-effort duplicate-creation lock
	ContactLockTTL = 10 * time.Second

	// ContactConflictRetryDelay is how long to wait before re-resolving after a
	// store uniqueness failure
	ContactConflictRetryDelay = 150 * time.Millisecond
)

// Sweeper constants
const (
	// OrphanGracePeriod is how long a pending message may sit without a
	// scheduler job ID before the sweeper marks it failed
	OrphanGracePeriod = 15 * time.Minute
)

// Reporting constants
const (
	// MaxReportedItemErrors bounds the per-item error list returned by bulk operations
	MaxReportedItemErrors = 25
)
