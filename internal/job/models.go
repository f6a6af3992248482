// Package job provides the processing-job domain: the job entity and its
// state machine, the manager that owns every job from creation to terminal
// state, and the persistence and batch-execution interfaces the manager
// depends on.
//
// This package defines interfaces for what it needs (persistence, batch
// execution, event observation) without depending on concrete
// implementations; those live in internal/storage, internal/batch, and
// internal/webhook respectively.
package job

import "time"

// Status is a job's lifecycle state.
type Status string

// Job lifecycle states.
//
// State machine:
//
//	pending ──start──► running ──(all batches done)──► completed
//	   │                  │
//	   │                  ├──(any fatal)──► failed
//	   │                  │
//	   │                  └──cancel──────► cancelled
//	   │
//	   └──cancel────────────────────────► cancelled
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses returns all valid job statuses.
func ValidStatuses() []Status {
	return []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
}

// IsValid checks whether the status is one of the defined lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final. Terminal jobs reject every
// further mutating operation.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// String returns the status as persisted and serialized.
func (s Status) String() string {
	return string(s)
}

type (
	// Job is a processing job: one bounded pass of raw rows for a single shop
	// through transformation, validation, and persistence.
	//
	// The Manager is the only mutator of status fields. Counter invariant,
	// maintained at every observation point:
	//
	//	ProcessedCount = SuccessCount + FailedCount + SkippedCount
	//	ProcessedCount <= TotalProducts
	Job struct {
		ID       string
		ShopType string
		Status   Status
		// BatchSize is the number of raw rows per batch, within [1, 10000].
		BatchSize int
		// EnforceStructure fails an entire batch when the compliance audit
		// finds template violations.
		EnforceStructure bool
		// SchemaVersion tags the processed rows this job writes.
		SchemaVersion string
		// TotalProducts is fixed when the job starts (bounded raw read).
		// Raw rows inserted after start are ignored until the next job.
		TotalProducts  int
		ProcessedCount int
		SuccessCount   int
		FailedCount    int
		// SkippedCount counts rows the transformer explicitly declined,
		// distinct from failures.
		SkippedCount int
		// DedupedCount counts rows whose processed row already existed with
		// an identical content hash.
		DedupedCount int
		StartedAt    *time.Time
		CompletedAt  *time.Time
		DurationMS   *int64
		// ErrorMessage holds the failure cause or cancellation reason on
		// terminal failed/cancelled jobs.
		ErrorMessage string
		Metadata     map[string]any
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Progress is a point-in-time snapshot of a job's counters.
	Progress struct {
		JobID              string
		Status             Status
		TotalProducts      int
		ProcessedCount     int
		SuccessCount       int
		FailedCount        int
		SkippedCount       int
		DedupedCount       int
		CurrentBatch       int
		TotalBatches       int
		ProgressPercentage float64
		// EstimatedCompletion extrapolates cumulative elapsed time per row
		// over the remaining rows. Nil until the first batch completes and
		// for jobs that are no longer running.
		EstimatedCompletion *time.Time
	}

	// CreateParams are the caller-supplied parts of a new job.
	CreateParams struct {
		ShopType string
		// BatchSize of 0 takes the manager's configured default.
		BatchSize int
		// EnforceStructure of nil takes the manager's configured default.
		EnforceStructure *bool
		Metadata         map[string]any
	}

	// Filter narrows job listings. Zero values mean "any".
	Filter struct {
		Status   Status
		ShopType string
		Limit    int
		Offset   int
	}

	// Patch is a partial job update; nil fields are left untouched.
	// Status changes are validated against the state machine by the store.
	Patch struct {
		Status         *Status
		TotalProducts  *int
		ProcessedCount *int
		SuccessCount   *int
		FailedCount    *int
		SkippedCount   *int
		DedupedCount   *int
		StartedAt      *time.Time
		CompletedAt    *time.Time
		DurationMS     *int64
		ErrorMessage   *string
	}

	// Compliance summarizes a structure audit over one batch's records.
	Compliance struct {
		Compliant  int
		Total      int
		Violations []string
	}

	// BatchResult is what one batch pass reports back to the manager.
	// Staging and processed rows are persisted by the adapter itself; the
	// manager only aggregates counters and errors.
	BatchResult struct {
		// RowCount is the number of raw rows the batch consumed.
		RowCount int
		Success  int
		Failed   int
		Skipped  int
		Deduped  int
		// Errors were already recorded by the adapter; they are returned for
		// counting and event payloads.
		Errors     []*ProcessingError
		Compliance *Compliance
	}

	// Descriptor hands a batch adapter everything it needs to process one
	// batch of a running job.
	Descriptor struct {
		JobID            string
		ShopType         string
		BatchSize        int
		EnforceStructure bool
		SchemaVersion    string
		// BatchNumber is 1-based; the adapter derives the raw-row offset
		// from it.
		BatchNumber  int
		TotalBatches int
	}
)

// Batch size bounds for job creation.
const (
	MinBatchSize = 1
	MaxBatchSize = 10000
)

// MaxReasonLength bounds cancellation reasons.
const MaxReasonLength = 500

// Percentage computes progress as processed/total*100, 0 for empty jobs.
func Percentage(processed, total int) float64 {
	if total <= 0 {
		return 0
	}

	return float64(processed) / float64(total) * 100
}
