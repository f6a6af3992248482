package webhook

import "github.com/supermarket-io/processor/internal/job"

// Event is a dot-separated webhook event name.
type Event string

// Webhook events and their delivery paths relative to the base URL.
const (
	EventJobStarted    Event = "job.started"
	EventJobProgress   Event = "job.progress"
	EventJobCompleted  Event = "job.completed"
	EventJobFailed     Event = "job.failed"
	EventHighErrorRate Event = "processing.high_error_rate"
	EventHealthCheck   Event = "system.health_check"
)

// eventPaths maps each event to its delivery path.
var eventPaths = map[Event]string{
	EventJobStarted:    "/webhook/processor/job-started",
	EventJobProgress:   "/webhook/processor/job-progress",
	EventJobCompleted:  "/webhook/processor/job-completed",
	EventJobFailed:     "/webhook/processor/job-failed",
	EventHighErrorRate: "/webhook/processor/alert",
	EventHealthCheck:   "/webhook/processor/health-check",
}

// Path returns the event's delivery path and whether the event is known.
func (e Event) Path() (string, bool) {
	path, ok := eventPaths[e]

	return path, ok
}

// jobStartedData builds the job.started payload.
func jobStartedData(j *job.Job) map[string]any {
	return map[string]any{
		"job_id":         j.ID,
		"shop_type":      j.ShopType,
		"total_products": j.TotalProducts,
		"status":         j.Status.String(),
	}
}

// jobProgressData builds the job.progress payload.
func jobProgressData(p *job.Progress) map[string]any {
	return map[string]any{
		"job_id":              p.JobID,
		"progress_percentage": p.ProgressPercentage,
		"processed_count":     p.ProcessedCount,
		"total_products":      p.TotalProducts,
		"success_count":       p.SuccessCount,
		"failed_count":        p.FailedCount,
		"current_batch":       p.CurrentBatch,
		"total_batches":       p.TotalBatches,
	}
}

// jobCompletedData builds the job.completed payload. Cancelled jobs share
// this event with status "cancelled".
func jobCompletedData(j *job.Job, errorCount int) map[string]any {
	var durationMS int64
	if j.DurationMS != nil {
		durationMS = *j.DurationMS
	}

	return map[string]any{
		"job_id":          j.ID,
		"status":          j.Status.String(),
		"total_processed": j.ProcessedCount,
		"success_count":   j.SuccessCount,
		"failed_count":    j.FailedCount,
		"skipped_count":   j.SkippedCount,
		"deduped_count":   j.DedupedCount,
		"duration_ms":     durationMS,
		"error_count":     errorCount,
	}
}

// jobFailedData builds the job.failed payload.
func jobFailedData(j *job.Job) map[string]any {
	return map[string]any{
		"job_id":          j.ID,
		"status":          j.Status.String(),
		"shop_type":       j.ShopType,
		"error_message":   j.ErrorMessage,
		"processed_count": j.ProcessedCount,
		"failed_count":    j.FailedCount,
	}
}
