package api

import (
	"time"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/storage"
)

// API request and response types. These are separate from the domain models
// so the wire contract can evolve without touching internal types; explicit
// mapping functions below translate between the two.

type (
	// CreateJobRequest is the body of POST /jobs.
	CreateJobRequest struct {
		ShopType         string         `json:"shop_type"`
		BatchSize        int            `json:"batch_size,omitempty"`
		EnforceStructure *bool          `json:"enforce_structure,omitempty"`
		Metadata         map[string]any `json:"metadata,omitempty"`
	}

	// CancelJobRequest is the body of POST /jobs/{id}/cancel.
	CancelJobRequest struct {
		Reason string `json:"reason"`
	}

	// TriggerRequest is the body of POST /webhook/n8n and POST /process/{shopType}.
	// ShopType in the body is ignored by /process, which takes it from the path;
	// Action is only consulted by the webhook endpoint.
	TriggerRequest struct {
		Action           string         `json:"action,omitempty"`
		ShopType         string         `json:"shop_type,omitempty"`
		BatchSize        int            `json:"batch_size,omitempty"`
		EnforceStructure *bool          `json:"enforce_structure,omitempty"`
		Metadata         map[string]any `json:"metadata,omitempty"`
	}

	// JobResponse is the wire form of a processing job.
	JobResponse struct {
		ID               string         `json:"id"`
		ShopType         string         `json:"shop_type"`
		Status           string         `json:"status"`
		BatchSize        int            `json:"batch_size"`
		EnforceStructure bool           `json:"enforce_structure"`
		SchemaVersion    string         `json:"schema_version"`
		TotalProducts    int            `json:"total_products"`
		ProcessedCount   int            `json:"processed_count"`
		SuccessCount     int            `json:"success_count"`
		FailedCount      int            `json:"failed_count"`
		SkippedCount     int            `json:"skipped_count"`
		DedupedCount     int            `json:"deduped_count"`
		StartedAt        *time.Time     `json:"started_at,omitempty"`
		CompletedAt      *time.Time     `json:"completed_at,omitempty"`
		DurationMS       *int64         `json:"duration_ms,omitempty"`
		ErrorMessage     string         `json:"error_message,omitempty"`
		Metadata         map[string]any `json:"metadata,omitempty"`
		CreatedAt        time.Time      `json:"created_at"`
		UpdatedAt        time.Time      `json:"updated_at"`
	}

	// ProgressResponse is the wire form of a job progress snapshot.
	ProgressResponse struct {
		JobID               string     `json:"job_id"`
		Status              string     `json:"status"`
		TotalProducts       int        `json:"total_products"`
		ProcessedCount      int        `json:"processed_count"`
		SuccessCount        int        `json:"success_count"`
		FailedCount         int        `json:"failed_count"`
		SkippedCount        int        `json:"skipped_count"`
		DedupedCount        int        `json:"deduped_count"`
		CurrentBatch        int        `json:"current_batch"`
		TotalBatches        int        `json:"total_batches"`
		ProgressPercentage  float64    `json:"progress_percentage"`
		EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	}

	// ProcessingErrorResponse is the wire form of one recorded error.
	ProcessingErrorResponse struct {
		ID           int64          `json:"id"`
		JobID        string         `json:"job_id"`
		RawProductID *int64         `json:"raw_product_id,omitempty"`
		ProductID    *string        `json:"product_id,omitempty"`
		ShopType     string         `json:"shop_type"`
		ErrorType    string         `json:"error_type"`
		ErrorMessage string         `json:"error_message"`
		ErrorDetails map[string]any `json:"error_details,omitempty"`
		Severity     string         `json:"severity"`
		IsResolved   bool           `json:"is_resolved"`
		CreatedAt    time.Time      `json:"created_at"`
	}

	// ProductResponse is the wire form of a processed product.
	ProductResponse struct {
		UnifiedID     string           `json:"unified_id"`
		ShopType      string           `json:"shop_type"`
		ExternalID    string           `json:"external_id"`
		SchemaVersion string           `json:"schema_version"`
		JobID         string           `json:"job_id"`
		ContentHash   string           `json:"content_hash"`
		Record        canonical.Record `json:"record"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}

	// JobListResponse pages over jobs.
	JobListResponse struct {
		Jobs   []*JobResponse `json:"jobs"`
		Total  int            `json:"total"`
		Limit  int            `json:"limit"`
		Offset int            `json:"offset"`
	}

	// ErrorListResponse pages over a job's recorded errors.
	ErrorListResponse struct {
		Errors []*ProcessingErrorResponse `json:"errors"`
		Total  int                        `json:"total"`
		Limit  int                        `json:"limit"`
		Offset int                        `json:"offset"`
	}

	// ProductListResponse pages over processed products.
	ProductListResponse struct {
		Products []*ProductResponse `json:"products"`
		Total    int                `json:"total"`
		Limit    int                `json:"limit"`
		Offset   int                `json:"offset"`
	}
)

func toJobResponse(j *job.Job) *JobResponse {
	return &JobResponse{
		ID:               j.ID,
		ShopType:         j.ShopType,
		Status:           j.Status.String(),
		BatchSize:        j.BatchSize,
		EnforceStructure: j.EnforceStructure,
		SchemaVersion:    j.SchemaVersion,
		TotalProducts:    j.TotalProducts,
		ProcessedCount:   j.ProcessedCount,
		SuccessCount:     j.SuccessCount,
		FailedCount:      j.FailedCount,
		SkippedCount:     j.SkippedCount,
		DedupedCount:     j.DedupedCount,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		DurationMS:       j.DurationMS,
		ErrorMessage:     j.ErrorMessage,
		Metadata:         j.Metadata,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func toJobListResponse(jobs []*job.Job, total, limit, offset int) *JobListResponse {
	out := make([]*JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}

	return &JobListResponse{Jobs: out, Total: total, Limit: limit, Offset: offset}
}

func toProgressResponse(p *job.Progress) *ProgressResponse {
	return &ProgressResponse{
		JobID:               p.JobID,
		Status:              p.Status.String(),
		TotalProducts:       p.TotalProducts,
		ProcessedCount:      p.ProcessedCount,
		SuccessCount:        p.SuccessCount,
		FailedCount:         p.FailedCount,
		SkippedCount:        p.SkippedCount,
		DedupedCount:        p.DedupedCount,
		CurrentBatch:        p.CurrentBatch,
		TotalBatches:        p.TotalBatches,
		ProgressPercentage:  p.ProgressPercentage,
		EstimatedCompletion: p.EstimatedCompletion,
	}
}

func toErrorListResponse(errs []*job.ProcessingError, total, limit, offset int) *ErrorListResponse {
	out := make([]*ProcessingErrorResponse, 0, len(errs))
	for _, e := range errs {
		out = append(out, &ProcessingErrorResponse{
			ID:           e.ID,
			JobID:        e.JobID,
			RawProductID: e.RawProductID,
			ProductID:    e.ProductID,
			ShopType:     e.ShopType,
			ErrorType:    e.ErrorType,
			ErrorMessage: e.ErrorMessage,
			ErrorDetails: e.ErrorDetails,
			Severity:     e.Severity,
			IsResolved:   e.IsResolved,
			CreatedAt:    e.CreatedAt,
		})
	}

	return &ErrorListResponse{Errors: out, Total: total, Limit: limit, Offset: offset}
}

func toProductResponse(p *storage.ProcessedProduct) *ProductResponse {
	return &ProductResponse{
		UnifiedID:     p.UnifiedID,
		ShopType:      p.ShopType,
		ExternalID:    p.ExternalID,
		SchemaVersion: p.SchemaVersion,
		JobID:         p.JobID,
		ContentHash:   p.ContentHash,
		Record:        p.Record,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toProductListResponse(products []*storage.ProcessedProduct, total, limit, offset int) *ProductListResponse {
	out := make([]*ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}

	return &ProductListResponse{Products: out, Total: total, Limit: limit, Offset: offset}
}
