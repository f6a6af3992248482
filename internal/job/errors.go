package job

import "time"

// Error kinds recorded in processing_errors rows and surfaced in API
// responses. Kinds are stable strings, not a type hierarchy: every error is a
// tag plus structured details.
const (
	// ErrorTypeValidation marks records that failed template validation.
	ErrorTypeValidation = "VALIDATION_ERROR"
	// ErrorTypeTransformation marks rows the shop transformer could not map.
	ErrorTypeTransformation = "TRANSFORMATION_ERROR"
	// ErrorTypeStructureViolation marks compliance-audit failures under
	// structure enforcement.
	ErrorTypeStructureViolation = "STRUCTURE_VIOLATION"
	// ErrorTypeBatchFailure marks rows faulted by an unhandled batch-level
	// failure in the adapter.
	ErrorTypeBatchFailure = "BATCH_PROCESSING_FAILURE"
	// ErrorTypeDatabase marks storage failures.
	ErrorTypeDatabase = "DATABASE_ERROR"
	// ErrorTypeLifecycle marks illegal job state transitions. Surfaced to
	// callers as a conflict; never recorded against rows.
	ErrorTypeLifecycle = "JOB_LIFECYCLE_ERROR"
	// ErrorTypeWebhookDelivery marks webhook posts that exhausted retries.
	// Never affects job status.
	ErrorTypeWebhookDelivery = "WEBHOOK_DELIVERY_FAILURE"
)

// Severity levels for processing errors.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SeverityFor maps an error kind to its severity. Validation errors escalate
// from medium to high when a required field is missing; unknown kinds default
// to medium.
func SeverityFor(errorType string, missingRequired bool) string {
	switch errorType {
	case ErrorTypeValidation:
		if missingRequired {
			return SeverityHigh
		}

		return SeverityMedium
	case ErrorTypeStructureViolation:
		return SeverityCritical
	case ErrorTypeTransformation, ErrorTypeBatchFailure:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ProcessingError is one persisted error row. Error rows are append-only:
// retried batches may produce duplicates, which remain classifiable by job id.
type ProcessingError struct {
	ID           int64
	JobID        string
	RawProductID *int64
	// ProductID is the unified_id of the offending record when one was
	// produced before the failure.
	ProductID    *string
	ShopType     string
	ErrorType    string
	ErrorMessage string
	// ErrorDetails carries structured context: offending fields, validator
	// reports, batch numbers. Never the raw payload when redaction is on.
	ErrorDetails map[string]any
	StackTrace   string
	Severity     string
	IsResolved   bool
	CreatedAt    time.Time
}
