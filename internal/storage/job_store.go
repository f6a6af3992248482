package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/supermarket-io/processor/internal/job"
)

// ErrProcessingErrorNotFound is returned when an error row id does not exist.
var ErrProcessingErrorNotFound = errors.New("processing error not found")

// JobStore is the PostgreSQL implementation of job.Store. Status changes are
// validated against the lifecycle state machine under a row lock, so terminal
// jobs stay immutable even under concurrent mutators.
type JobStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time check that JobStore satisfies the domain contract.
var _ job.Store = (*JobStore)(nil)

// NewJobStore creates a job store over an established connection.
func NewJobStore(conn *Connection, logger *slog.Logger) *JobStore {
	return &JobStore{conn: conn, logger: logger}
}

// CreateJob inserts a new pending job row.
func (s *JobStore) CreateJob(ctx context.Context, j *job.Job) error {
	metadata, err := json.Marshal(j.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode job metadata: %w", err)
	}

	_, err = s.conn.DB().ExecContext(ctx, `
		INSERT INTO processed.processing_jobs
			(job_id, shop_type, status, batch_size, enforce_structure, schema_version,
			 total_products, processed_count, success_count, failed_count,
			 skipped_count, deduped_count, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, 0, 0, $7, NOW(), NOW())`,
		j.ID, j.ShopType, j.Status.String(), j.BatchSize, j.EnforceStructure,
		j.SchemaVersion, metadata)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", j.ID, err)
	}

	s.logger.Debug("created job row",
		slog.String("job_id", j.ID),
		slog.String("shop_type", j.ShopType),
	)

	return nil
}

const jobColumns = `
	job_id, shop_type, status, batch_size, enforce_structure, schema_version,
	total_products, processed_count, success_count, failed_count,
	skipped_count, deduped_count, started_at, completed_at, duration_ms,
	COALESCE(error_message, ''), metadata, created_at, updated_at`

// GetJob reads one job by id.
func (s *JobStore) GetJob(ctx context.Context, id string) (*job.Job, error) {
	row := s.conn.DB().QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM processed.processing_jobs WHERE job_id = $1`, id)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", job.ErrJobNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	return j, nil
}

// ListJobs returns jobs matching the filter, newest first, plus the total
// match count.
func (s *JobStore) ListJobs(ctx context.Context, filter *job.Filter) ([]*job.Job, int, error) {
	if filter == nil {
		filter = &job.Filter{}
	}

	var (
		clauses []string
		args    []any
	)

	if filter.Status != "" {
		args = append(args, filter.Status.String())
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.ShopType != "" {
		args = append(args, filter.ShopType)
		clauses = append(clauses, fmt.Sprintf("shop_type = $%d", len(args)))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.conn.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed.processing_jobs"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM processed.processing_jobs%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, jobColumns, where, len(args)+1, len(args)+2)

	rows, err := s.conn.DB().QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*job.Job

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}

		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// PatchJob applies a partial update. A patch carrying a status locks the row,
// validates the transition against the current status, and only then writes.
func (s *JobStore) PatchJob(ctx context.Context, id string, patch *job.Patch) error {
	return s.applyPatch(ctx, id, patch, false)
}

// CompleteJob moves a job to a terminal status and fixes its final totals in
// one update.
func (s *JobStore) CompleteJob(ctx context.Context, id string, patch *job.Patch) error {
	if patch == nil || patch.Status == nil || !patch.Status.IsTerminal() {
		return fmt.Errorf("%w: completion requires a terminal status", job.ErrInvalidStatus)
	}

	return s.applyPatch(ctx, id, patch, true)
}

// applyPatch is the shared guts of PatchJob and CompleteJob. The row lock is
// taken only for status-bearing patches; counter-only patches are plain
// updates on a running row.
func (s *JobStore) applyPatch(ctx context.Context, id string, patch *job.Patch, terminal bool) error {
	if patch == nil {
		return nil
	}

	tx, err := s.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin job patch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if patch.Status != nil {
		var current string

		err := tx.QueryRowContext(ctx,
			`SELECT status FROM processed.processing_jobs WHERE job_id = $1 FOR UPDATE`, id,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", job.ErrJobNotFound, id)
		}

		if err != nil {
			return fmt.Errorf("failed to lock job %s: %w", id, err)
		}

		if err := job.ValidateStateTransition(job.Status(current), *patch.Status); err != nil {
			return fmt.Errorf("%w: job %s", err, id)
		}

		// Terminal self-transitions are idempotent no-ops. The first
		// completion already fixed the final totals; re-finalizing must not
		// overwrite them.
		if terminal && job.Status(current).IsTerminal() {
			return tx.Commit()
		}
	}

	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		return tx.Commit()
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE processed.processing_jobs SET %s, updated_at = NOW() WHERE job_id = $%d`,
		strings.Join(sets, ", "), len(args))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch job %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", job.ErrJobNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job patch for %s: %w", id, err)
	}

	return nil
}

// patchAssignments turns the non-nil patch fields into SET clauses.
func patchAssignments(patch *job.Patch) ([]string, []any) {
	var (
		sets []string
		args []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", patch.Status.String())
	}

	if patch.TotalProducts != nil {
		add("total_products", *patch.TotalProducts)
	}

	if patch.ProcessedCount != nil {
		add("processed_count", *patch.ProcessedCount)
	}

	if patch.SuccessCount != nil {
		add("success_count", *patch.SuccessCount)
	}

	if patch.FailedCount != nil {
		add("failed_count", *patch.FailedCount)
	}

	if patch.SkippedCount != nil {
		add("skipped_count", *patch.SkippedCount)
	}

	if patch.DedupedCount != nil {
		add("deduped_count", *patch.DedupedCount)
	}

	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}

	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}

	if patch.DurationMS != nil {
		add("duration_ms", *patch.DurationMS)
	}

	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}

	return sets, args
}

// RecordErrors inserts error rows in a single transaction.
func (s *JobStore) RecordErrors(ctx context.Context, errs []*job.ProcessingError) error {
	if len(errs) == 0 {
		return nil
	}

	tx, err := s.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin error insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO processed.processing_errors
			(job_id, raw_product_id, product_id, shop_type, error_type,
			 error_message, error_details, stack_trace, severity, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NOW())`)
	if err != nil {
		return fmt.Errorf("failed to prepare error insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range errs {
		details, err := json.Marshal(e.ErrorDetails)
		if err != nil {
			return fmt.Errorf("failed to encode error details: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			e.JobID, e.RawProductID, e.ProductID, e.ShopType, e.ErrorType,
			e.ErrorMessage, details, nullIfEmpty(e.StackTrace), e.Severity)
		if err != nil {
			return fmt.Errorf("failed to insert processing error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit processing errors: %w", err)
	}

	return nil
}

// ListErrors returns one page of a job's error rows, oldest first, plus the
// total count.
func (s *JobStore) ListErrors(ctx context.Context, jobID string, limit, offset int) ([]*job.ProcessingError, int, error) {
	var total int
	if err := s.conn.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed.processing_errors WHERE job_id = $1`, jobID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count errors for job %s: %w", jobID, err)
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.conn.DB().QueryContext(ctx, `
		SELECT id, job_id, raw_product_id, product_id, shop_type, error_type,
		       error_message, error_details, COALESCE(stack_trace, ''),
		       severity, is_resolved, created_at
		FROM processed.processing_errors
		WHERE job_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		jobID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list errors for job %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*job.ProcessingError

	for rows.Next() {
		var (
			e       job.ProcessingError
			details []byte
		)

		err := rows.Scan(&e.ID, &e.JobID, &e.RawProductID, &e.ProductID, &e.ShopType,
			&e.ErrorType, &e.ErrorMessage, &details, &e.StackTrace,
			&e.Severity, &e.IsResolved, &e.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan processing error: %w", err)
		}

		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.ErrorDetails); err != nil {
				return nil, 0, fmt.Errorf("failed to decode error details: %w", err)
			}
		}

		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate processing errors: %w", err)
	}

	return result, total, nil
}

// ResolveError marks one error row as resolved.
func (s *JobStore) ResolveError(ctx context.Context, id int64) error {
	result, err := s.conn.DB().ExecContext(ctx,
		`UPDATE processed.processing_errors SET is_resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve error %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: id %d", ErrProcessingErrorNotFound, id)
	}

	return nil
}

// ErrorStatsSince summarizes errors recorded after the cutoff, grouped by
// kind. Consumed by the monitoring agent.
func (s *JobStore) ErrorStatsSince(ctx context.Context, since time.Time) (*ErrorStats, error) {
	stats := &ErrorStats{}

	err := s.conn.DB().QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT is_resolved)
		FROM processed.processing_errors
		WHERE created_at >= $1`, since,
	).Scan(&stats.Total, &stats.Unresolved)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent errors: %w", err)
	}

	rows, err := s.conn.DB().QueryContext(ctx, `
		SELECT error_type, COUNT(*)
		FROM processed.processing_errors
		WHERE created_at >= $1
		GROUP BY error_type
		ORDER BY COUNT(*) DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to group recent errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tc ErrorTypeCount
		if err := rows.Scan(&tc.ErrorType, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan error group: %w", err)
		}

		stats.ByType = append(stats.ByType, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate error groups: %w", err)
	}

	return stats, nil
}

// HealthCheck verifies the backing store is reachable.
func (s *JobStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// scanJob reads one job row.
func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j        job.Job
		status   string
		metadata []byte
	)

	err := row.Scan(&j.ID, &j.ShopType, &status, &j.BatchSize, &j.EnforceStructure,
		&j.SchemaVersion, &j.TotalProducts, &j.ProcessedCount, &j.SuccessCount,
		&j.FailedCount, &j.SkippedCount, &j.DedupedCount, &j.StartedAt,
		&j.CompletedAt, &j.DurationMS, &j.ErrorMessage, &metadata,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	j.Status = job.Status(status)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &j.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode job metadata: %w", err)
		}
	}

	return &j, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}
