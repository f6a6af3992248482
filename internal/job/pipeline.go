package job

import (
	"context"
	"log/slog"
	"time"
)

// run is the background pipeline for one job. Batches are processed strictly
// in order; cancellation and timeout are honored at batch boundaries only, so
// a batch in flight always commits or rolls back as a unit.
func (m *Manager) run(j *Job, active *activeJob, totalBatches int, startedAt time.Time) {
	defer m.wg.Done()
	defer m.removeActive(j.ID)

	// The pipeline outlives the request that started the job.
	ctx := context.Background()
	deadline := startedAt.Add(m.config.JobTimeout)

	totals := counters{}

	for batchNumber := 1; batchNumber <= totalBatches; batchNumber++ {
		if cancelled, reason := active.cancelState(); cancelled {
			m.finalize(ctx, j, StatusCancelled, reason, startedAt, totals)

			return
		}

		if time.Now().After(deadline) {
			m.logger.Warn("job exceeded its deadline",
				slog.String("job_id", j.ID),
				slog.Duration("timeout", m.config.JobTimeout),
			)
			m.finalize(ctx, j, StatusCancelled, "timeout", startedAt, totals)

			return
		}

		for _, listener := range m.listeners {
			listener.BatchStarted(j.ID, batchNumber, totalBatches)
		}

		result, err := m.runner.ProcessBatch(ctx, &Descriptor{
			JobID:            j.ID,
			ShopType:         j.ShopType,
			BatchSize:        j.BatchSize,
			EnforceStructure: j.EnforceStructure,
			SchemaVersion:    j.SchemaVersion,
			BatchNumber:      batchNumber,
			TotalBatches:     totalBatches,
		})
		if err != nil {
			m.logger.Error("batch failed fatally",
				slog.String("job_id", j.ID),
				slog.Int("batch", batchNumber),
				slog.String("error", err.Error()),
			)
			m.finalize(ctx, j, StatusFailed, err.Error(), startedAt, totals)

			return
		}

		totals.add(result)

		for _, listener := range m.listeners {
			listener.BatchCompleted(j.ID, batchNumber, result)
		}

		// Counter patches are idempotent; a miss here is repaired by the
		// next batch or the final completion write.
		err = m.store.PatchJob(ctx, j.ID, &Patch{
			ProcessedCount: &totals.processed,
			SuccessCount:   &totals.success,
			FailedCount:    &totals.failed,
			SkippedCount:   &totals.skipped,
			DedupedCount:   &totals.deduped,
		})
		if err != nil {
			m.logger.Error("failed to persist job counters",
				slog.String("job_id", j.ID),
				slog.Int("batch", batchNumber),
				slog.String("error", err.Error()),
			)
		}

		progress := &Progress{
			JobID:               j.ID,
			Status:              StatusRunning,
			TotalProducts:       j.TotalProducts,
			ProcessedCount:      totals.processed,
			SuccessCount:        totals.success,
			FailedCount:         totals.failed,
			SkippedCount:        totals.skipped,
			DedupedCount:        totals.deduped,
			CurrentBatch:        batchNumber,
			TotalBatches:        totalBatches,
			ProgressPercentage:  Percentage(totals.processed, j.TotalProducts),
			EstimatedCompletion: estimateCompletion(startedAt, totals.processed, j.TotalProducts),
		}

		active.setProgress(progress)

		for _, listener := range m.listeners {
			listener.JobProgress(progress)
		}
	}

	m.finalize(ctx, j, StatusCompleted, "", startedAt, totals)
}

// counters accumulates batch results into job totals.
type counters struct {
	processed, success, failed, skipped, deduped int
	errorCount                                   int
}

func (c *counters) add(result *BatchResult) {
	c.processed += result.RowCount
	c.success += result.Success
	c.failed += result.Failed
	c.skipped += result.Skipped
	c.deduped += result.Deduped
	c.errorCount += len(result.Errors)
}

// estimateCompletion extrapolates cumulative elapsed time per processed row
// over the remaining rows. Nil when nothing was processed yet or nothing
// remains.
func estimateCompletion(startedAt time.Time, processed, total int) *time.Time {
	if processed <= 0 {
		return nil
	}

	remaining := total - processed
	if remaining <= 0 {
		return nil
	}

	avgPerRow := time.Since(startedAt) / time.Duration(processed)
	eta := time.Now().UTC().Add(avgPerRow * time.Duration(remaining))

	return &eta
}

// finalize moves a job to its terminal state, persists final totals and
// duration, and emits the terminal event. The terminal event is always the
// last event observed for a job.
func (m *Manager) finalize(ctx context.Context, j *Job, status Status, message string, startedAt time.Time, totals counters) {
	now := time.Now().UTC()
	duration := now.Sub(startedAt).Milliseconds()

	patch := &Patch{
		Status:         &status,
		ProcessedCount: &totals.processed,
		SuccessCount:   &totals.success,
		FailedCount:    &totals.failed,
		SkippedCount:   &totals.skipped,
		DedupedCount:   &totals.deduped,
		CompletedAt:    &now,
		DurationMS:     &duration,
	}
	if message != "" {
		patch.ErrorMessage = &message
	}

	if err := m.store.CompleteJob(ctx, j.ID, patch); err != nil {
		m.logger.Error("failed to finalize job",
			slog.String("job_id", j.ID),
			slog.String("status", status.String()),
			slog.String("error", err.Error()),
		)
	}

	final, err := m.store.GetJob(ctx, j.ID)
	if err != nil {
		// Fall back to the local view so listeners still observe the outcome.
		local := *j
		local.Status = status
		local.ProcessedCount = totals.processed
		local.SuccessCount = totals.success
		local.FailedCount = totals.failed
		local.SkippedCount = totals.skipped
		local.DedupedCount = totals.deduped
		local.CompletedAt = &now
		local.DurationMS = &duration
		local.ErrorMessage = message
		final = &local
	}

	switch status {
	case StatusCompleted:
		for _, listener := range m.listeners {
			listener.JobCompleted(final, totals.errorCount)
		}
	case StatusFailed:
		for _, listener := range m.listeners {
			listener.JobFailed(final)
		}
	case StatusCancelled:
		for _, listener := range m.listeners {
			listener.JobCancelled(final)
		}
	}

	m.logger.Info("job finished",
		slog.String("job_id", j.ID),
		slog.String("status", status.String()),
		slog.Int("processed", totals.processed),
		slog.Int("success", totals.success),
		slog.Int("failed", totals.failed),
		slog.Int("skipped", totals.skipped),
		slog.Int("deduped", totals.deduped),
		slog.Int64("duration_ms", duration),
	)
}
