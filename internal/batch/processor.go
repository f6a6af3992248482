// Package batch executes one batch of a processing job: transform raw rows,
// validate the results against the canonical template, audit compliance, and
// persist the batch atomically.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/storage"
	"github.com/supermarket-io/processor/internal/transform"
)

// Registry resolves shop transformers. Implemented by *transform.Registry.
type Registry interface {
	ForShop(shopType string) (transform.Transformer, error)
	Shops() []string
}

// ProductStore is the slice of product persistence the adapter needs.
// Implemented by *storage.ProductStore.
type ProductStore interface {
	CountRaw(ctx context.Context, shopType string) (int, error)
	ListRaw(ctx context.Context, shopType string, limit, offset int) ([]*storage.RawProduct, error)
	FetchContentHashes(ctx context.Context, unifiedIDs []string) (map[string]string, error)
	PersistBatch(ctx context.Context, jobID, schemaVersion string, items []*storage.BatchItem) error
	ComplianceRate(items []*storage.BatchItem) *job.Compliance
}

// ErrorRecorder persists per-row processing errors. Implemented by
// *storage.JobStore.
type ErrorRecorder interface {
	RecordErrors(ctx context.Context, errs []*job.ProcessingError) error
}

// Processor is the batch adapter: it implements job.Runner over the shop
// transformer registry and the product store.
type Processor struct {
	registry  Registry
	products  ProductStore
	errors    ErrorRecorder
	validator *canonical.Validator
	logger    *slog.Logger
}

// Compile-time check that Processor satisfies the manager's contract.
var _ job.Runner = (*Processor)(nil)

// NewProcessor creates a batch adapter.
func NewProcessor(registry Registry, products ProductStore, errors ErrorRecorder, logger *slog.Logger) *Processor {
	return &Processor{
		registry:  registry,
		products:  products,
		errors:    errors,
		validator: canonical.NewValidator(),
		logger:    logger,
	}
}

// Shops lists the shop types a transformer is registered for.
func (p *Processor) Shops() []string {
	return p.registry.Shops()
}

// CountRaw counts raw rows available for a shop.
func (p *Processor) CountRaw(ctx context.Context, shopType string) (int, error) {
	return p.products.CountRaw(ctx, shopType)
}

// ProcessBatch runs one batch end to end.
//
// Per-row failures are recorded and counted, never returned as errors. A
// non-nil error is reserved for conditions that must fail the job: an
// unregistered shop, or the database failing both attempts of a read, the
// transactional write, or the error-row write.
func (p *Processor) ProcessBatch(ctx context.Context, d *job.Descriptor) (*job.BatchResult, error) {
	transformer, err := p.registry.ForShop(d.ShopType)
	if err != nil {
		return nil, err
	}

	offset := (d.BatchNumber - 1) * d.BatchSize

	rows, err := p.listRawRetry(ctx, d.ShopType, d.BatchSize, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read batch %d: %w", job.ErrorTypeDatabase, d.BatchNumber, err)
	}

	result := &job.BatchResult{RowCount: len(rows)}
	if len(rows) == 0 {
		return result, nil
	}

	items := make([]*storage.BatchItem, 0, len(rows))

	for _, raw := range rows {
		item, procErr := p.processRow(transformer, d, raw)

		switch {
		case item != nil:
			items = append(items, item)
			result.Success++
		case procErr != nil:
			result.Failed++
			result.Errors = append(result.Errors, procErr)
		default:
			result.Skipped++
		}
	}

	result.Compliance = p.products.ComplianceRate(items)

	if d.EnforceStructure && len(result.Compliance.Violations) > 0 {
		// Enforcement fails the whole batch: no writes, every row faulted.
		p.failBatch(result, d, rows, job.ErrorTypeStructureViolation,
			strings.Join(result.Compliance.Violations, "; "))

		if err := p.recordErrors(ctx, result.Errors); err != nil {
			return nil, fmt.Errorf("%s: batch %d error write failed twice: %w",
				job.ErrorTypeDatabase, d.BatchNumber, err)
		}

		return result, nil
	}

	if len(items) > 0 {
		deduped, persistErr := p.persist(ctx, d, items)

		switch {
		case persistErr == nil:
			result.Deduped = deduped
		case storage.IsConnectionError(persistErr):
			return nil, fmt.Errorf("%s: batch %d write failed twice: %w",
				job.ErrorTypeDatabase, d.BatchNumber, persistErr)
		default:
			// A data-level write failure faults the batch but not the job.
			p.failBatch(result, d, rows, job.ErrorTypeBatchFailure, persistErr.Error())
		}
	}

	if err := p.recordErrors(ctx, result.Errors); err != nil {
		return nil, fmt.Errorf("%s: batch %d error write failed twice: %w",
			job.ErrorTypeDatabase, d.BatchNumber, err)
	}

	return result, nil
}

// processRow transforms and validates one raw row.
// Returns (item, nil) on success, (nil, err) on failure, (nil, nil) when the
// transformer declined the row.
func (p *Processor) processRow(transformer transform.Transformer, d *job.Descriptor, raw *storage.RawProduct) (*storage.BatchItem, *job.ProcessingError) {
	outcome := transformer.Transform(raw.Data)

	if outcome.Skipped {
		return nil, nil
	}

	if outcome.Err != nil {
		return nil, p.rowError(d, raw, outcome.ExternalID, outcome.ErrorType, outcome.Severity,
			outcome.Err.Error(), nil)
	}

	record := outcome.Record
	record["unified_id"] = canonical.UnifiedID(d.ShopType, outcome.ExternalID, d.SchemaVersion)

	// Extras pass here so the record reaches the strict compliance audit,
	// which is where structure enforcement decides their fate.
	report := p.validator.Validate(record, canonical.Options{AllowExtras: true, CheckTypes: true})
	if !report.OK {
		typeErrors := make([]string, len(report.TypeErrors))
		for i, te := range report.TypeErrors {
			typeErrors[i] = te.String()
		}

		details := map[string]any{
			"missing":     report.Missing,
			"extras":      report.Extras,
			"type_errors": typeErrors,
			"score":       report.Score,
		}

		severity := job.SeverityFor(job.ErrorTypeValidation, report.MissingRequired())

		return nil, p.rowError(d, raw, outcome.ExternalID, job.ErrorTypeValidation, severity,
			"record failed template validation", details)
	}

	hash, err := canonical.ContentHash(record)
	if err != nil {
		return nil, p.rowError(d, raw, outcome.ExternalID, job.ErrorTypeTransformation,
			job.SeverityHigh, fmt.Sprintf("content hash failed: %v", err), nil)
	}

	return &storage.BatchItem{
		Raw:         raw,
		ExternalID:  outcome.ExternalID,
		UnifiedID:   record.UnifiedIDField(),
		ContentHash: hash,
		Record:      record,
	}, nil
}

// rowError builds one processing-error row.
func (p *Processor) rowError(d *job.Descriptor, raw *storage.RawProduct, externalID, errorType, severity, message string, details map[string]any) *job.ProcessingError {
	if details == nil {
		details = map[string]any{}
	}

	details["batch_number"] = d.BatchNumber

	e := &job.ProcessingError{
		JobID:        d.JobID,
		ShopType:     d.ShopType,
		ErrorType:    errorType,
		ErrorMessage: message,
		ErrorDetails: details,
		Severity:     severity,
	}

	if raw != nil {
		rawID := raw.ID
		e.RawProductID = &rawID
	}

	if externalID != "" {
		productID := canonical.UnifiedID(d.ShopType, externalID, d.SchemaVersion)
		e.ProductID = &productID
	}

	return e
}

// failBatch converts the batch outcome into all-rows-failed under the given
// error kind. Previously collected per-row errors are kept.
func (p *Processor) failBatch(result *job.BatchResult, d *job.Descriptor, rows []*storage.RawProduct, errorType, message string) {
	severity := job.SeverityFor(errorType, false)

	for _, raw := range rows {
		result.Errors = append(result.Errors,
			p.rowError(d, raw, "", errorType, severity, message, nil))
	}

	result.Failed = len(rows)
	result.Success = 0
	result.Skipped = 0
	result.Deduped = 0
}

// persist writes the batch, retrying once on a connection-classified failure,
// and counts dedups against the pre-upsert content hashes.
func (p *Processor) persist(ctx context.Context, d *job.Descriptor, items []*storage.BatchItem) (int, error) {
	unifiedIDs := make([]string, len(items))
	for i, item := range items {
		unifiedIDs[i] = item.UnifiedID
	}

	existing, err := p.products.FetchContentHashes(ctx, unifiedIDs)
	if err != nil {
		p.logger.Warn("failed to fetch pre-upsert hashes, dedup counts unavailable",
			slog.String("job_id", d.JobID),
			slog.String("error", err.Error()),
		)

		existing = map[string]string{}
	}

	deduped := 0

	for _, item := range items {
		if hash, ok := existing[item.UnifiedID]; ok && hash == item.ContentHash {
			deduped++
		}
	}

	err = p.products.PersistBatch(ctx, d.JobID, d.SchemaVersion, items)
	if err != nil && storage.IsConnectionError(err) {
		p.logger.Warn("batch write hit a connection failure, retrying once",
			slog.String("job_id", d.JobID),
			slog.Int("batch", d.BatchNumber),
			slog.String("error", err.Error()),
		)

		err = p.products.PersistBatch(ctx, d.JobID, d.SchemaVersion, items)
	}

	if err != nil {
		return 0, err
	}

	return deduped, nil
}

// listRawRetry reads one raw window, retrying once on a connection failure.
func (p *Processor) listRawRetry(ctx context.Context, shopType string, limit, offset int) ([]*storage.RawProduct, error) {
	rows, err := p.products.ListRaw(ctx, shopType, limit, offset)
	if err != nil && storage.IsConnectionError(err) {
		rows, err = p.products.ListRaw(ctx, shopType, limit, offset)
	}

	return rows, err
}

// recordErrors persists the batch's error rows, retrying once on a
// connection-classified failure. The batch is not acknowledged until its
// error rows are durable, so a final failure propagates to the caller.
func (p *Processor) recordErrors(ctx context.Context, errs []*job.ProcessingError) error {
	if len(errs) == 0 {
		return nil
	}

	err := p.errors.RecordErrors(ctx, errs)
	if err != nil && storage.IsConnectionError(err) {
		p.logger.Warn("error-row write hit a connection failure, retrying once",
			slog.Int("count", len(errs)),
			slog.String("error", err.Error()),
		)

		err = p.errors.RecordErrors(ctx, errs)
	}

	if err != nil {
		p.logger.Error("failed to record processing errors",
			slog.Int("count", len(errs)),
			slog.String("error", err.Error()),
		)
	}

	return err
}
