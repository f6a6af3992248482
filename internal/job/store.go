package job

import "context"

// Store defines the persistence interface for jobs and their error rows.
//
// The domain package defines this interface to specify what it needs for job
// storage without depending on concrete implementations; the PostgreSQL
// implementation lives in internal/storage.
//
// Implementations must enforce the state machine on status changes: a patch
// or completion that moves a job along an edge ValidateStateTransition
// rejects must fail with a lifecycle error and leave the row untouched. This
// is what makes terminal states immutable even under concurrent mutators.
type Store interface {
	// CreateJob inserts a new pending job. The job id must be allocated by
	// the caller and unique.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob reads one job by id. Returns ErrJobNotFound when absent.
	GetJob(ctx context.Context, id string) (*Job, error)

	// ListJobs returns jobs matching the filter, newest first, plus the
	// total match count for pagination.
	ListJobs(ctx context.Context, filter *Filter) ([]*Job, int, error)

	// PatchJob applies a partial update. When the patch carries a status it
	// is validated against the current row under a row lock.
	PatchJob(ctx context.Context, id string, patch *Patch) error

	// CompleteJob moves a job to a terminal status and fixes its final
	// totals, completion time, and duration in one update. The patch status
	// is required and must be terminal.
	CompleteJob(ctx context.Context, id string, patch *Patch) error

	// RecordErrors inserts error rows in a single transaction. Error rows
	// are append-only.
	RecordErrors(ctx context.Context, errs []*ProcessingError) error

	// ListErrors returns one page of a job's error rows, oldest first, plus
	// the total count.
	ListErrors(ctx context.Context, jobID string, limit, offset int) ([]*ProcessingError, int, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// Runner executes batches for the manager. Implemented by the batch adapter.
type Runner interface {
	// Shops lists the shop types a transformer is registered for.
	Shops() []string

	// CountRaw counts raw rows available for a shop. The manager bounds the
	// result to its configured per-job maximum.
	CountRaw(ctx context.Context, shopType string) (int, error)

	// ProcessBatch transforms, validates, and persists one batch. Per-row
	// failures are recorded and counted, not returned as errors; a non-nil
	// error means the job must move to failed (storage gave out on both
	// write attempts, or the adapter could not start at all).
	ProcessBatch(ctx context.Context, d *Descriptor) (*BatchResult, error)
}

// Listener observes the job lifecycle. The manager invokes listeners
// synchronously, so the ordering guarantees hold: job started before the
// first batch, batch k's events before batch k+1 starts, and the terminal
// event last. Listener implementations that must not stall the pipeline do
// their own buffering.
type Listener interface {
	JobStarted(j *Job)
	BatchStarted(jobID string, batchNumber, totalBatches int)
	BatchCompleted(jobID string, batchNumber int, result *BatchResult)
	JobProgress(p *Progress)
	JobCompleted(j *Job, errorCount int)
	JobFailed(j *Job)
	JobCancelled(j *Job)
}
