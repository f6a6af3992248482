package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/job"
)

// Sentinel errors for product storage operations.
var (
	// ErrRawProductNotFound is returned when a raw product id does not exist.
	ErrRawProductNotFound = errors.New("raw product not found")

	// ErrProcessedNotFound is returned when a unified id has no processed row.
	ErrProcessedNotFound = errors.New("processed product not found")

	// ErrEmptyBatch is returned when PersistBatch is called with no items.
	ErrEmptyBatch = errors.New("batch contains no items")
)

// bookkeepingColumns are the processed-table columns that are not part of the
// canonical template.
var bookkeepingColumns = []string{
	"external_id", "schema_version", "job_id", "raw_product_id", "content_hash",
}

// processedColumns is the full processed-table column list: the canonical
// template in declaration order, then bookkeeping. Built once from the
// template so SQL and record shape cannot drift apart.
var processedColumns = func() []string {
	specs := canonical.Fields()
	cols := make([]string, 0, len(specs)+len(bookkeepingColumns))

	for _, spec := range specs {
		cols = append(cols, spec.Name)
	}

	return append(cols, bookkeepingColumns...)
}()

// ProductStore persists raw, staging, and processed products.
type ProductStore struct {
	conn   *Connection
	target OutputTarget
	logger *slog.Logger
}

// NewProductStore creates a product store over an established connection.
// The output target decides whether PersistBatch writes staging rows,
// processed rows, or both.
func NewProductStore(conn *Connection, target OutputTarget, logger *slog.Logger) *ProductStore {
	if !target.IsValid() {
		target = OutputBoth
	}

	return &ProductStore{
		conn:   conn,
		target: target,
		logger: logger,
	}
}

// InsertRaw appends scraped payloads for one shop in a single transaction and
// returns the number of rows written.
func (s *ProductStore) InsertRaw(ctx context.Context, shopType, scrapeID string, payloads []map[string]any) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}

	tx, err := s.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin raw insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw.products (shop_type, scrape_id, data, scraped_at)
		VALUES ($1, $2, $3, NOW())`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare raw insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("failed to encode raw payload %d: %w", i, err)
		}

		if _, err := stmt.ExecContext(ctx, shopType, scrapeID, data); err != nil {
			return 0, fmt.Errorf("failed to insert raw payload %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit raw insert: %w", err)
	}

	s.logger.Debug("inserted raw products",
		slog.String("shop_type", shopType),
		slog.Int("count", len(payloads)),
	)

	return len(payloads), nil
}

// CountRaw counts the raw rows currently stored for a shop.
func (s *ProductStore) CountRaw(ctx context.Context, shopType string) (int, error) {
	var count int

	err := s.conn.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM raw.products WHERE shop_type = $1`, shopType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count raw products for %s: %w", shopType, err)
	}

	return count, nil
}

// ListRaw returns one window of raw rows for a shop, ordered by insertion id
// so repeated windows over a fixed total never skip or repeat rows.
func (s *ProductStore) ListRaw(ctx context.Context, shopType string, limit, offset int) ([]*RawProduct, error) {
	rows, err := s.conn.DB().QueryContext(ctx, `
		SELECT id, shop_type, COALESCE(scrape_id, ''), data, scraped_at, created_at
		FROM raw.products
		WHERE shop_type = $1
		ORDER BY id
		LIMIT $2 OFFSET $3`,
		shopType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw products for %s: %w", shopType, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*RawProduct

	for rows.Next() {
		var (
			raw  RawProduct
			data []byte
		)

		if err := rows.Scan(&raw.ID, &raw.ShopType, &raw.ScrapeID, &data, &raw.ScrapedAt, &raw.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw product: %w", err)
		}

		if err := json.Unmarshal(data, &raw.Data); err != nil {
			return nil, fmt.Errorf("failed to decode raw product %d: %w", raw.ID, err)
		}

		result = append(result, &raw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw products: %w", err)
	}

	return result, nil
}

// GetRawByID reads one raw row.
func (s *ProductStore) GetRawByID(ctx context.Context, id int64) (*RawProduct, error) {
	var (
		raw  RawProduct
		data []byte
	)

	err := s.conn.DB().QueryRowContext(ctx, `
		SELECT id, shop_type, COALESCE(scrape_id, ''), data, scraped_at, created_at
		FROM raw.products
		WHERE id = $1`, id,
	).Scan(&raw.ID, &raw.ShopType, &raw.ScrapeID, &data, &raw.ScrapedAt, &raw.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRawProductNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read raw product %d: %w", id, err)
	}

	if err := json.Unmarshal(data, &raw.Data); err != nil {
		return nil, fmt.Errorf("failed to decode raw product %d: %w", id, err)
	}

	return &raw, nil
}

// FetchContentHashes returns the stored content hash per unified id for the
// ids that already have a processed row. Read before the batch upsert, it is
// what makes dedup counting possible: an upsert alone cannot tell "new" from
// "identical re-run".
func (s *ProductStore) FetchContentHashes(ctx context.Context, unifiedIDs []string) (map[string]string, error) {
	if len(unifiedIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := s.conn.DB().QueryContext(ctx, `
		SELECT unified_id, content_hash
		FROM processed.products
		WHERE unified_id = ANY($1)`,
		pq.Array(unifiedIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string, len(unifiedIDs))

	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan content hash: %w", err)
		}

		hashes[id] = hash
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate content hashes: %w", err)
	}

	return hashes, nil
}

// PersistBatch writes one batch of transformed items atomically. Staging and
// processed writes share a single transaction, so a batch either lands in
// full or not at all.
func (s *ProductStore) PersistBatch(ctx context.Context, jobID, schemaVersion string, items []*BatchItem) error {
	if len(items) == 0 {
		return ErrEmptyBatch
	}

	tx, err := s.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.target.WritesStaging() {
		if err := s.upsertStaging(ctx, tx, items); err != nil {
			return err
		}
	}

	if s.target.WritesProcessed() {
		if err := s.upsertProcessed(ctx, tx, jobID, schemaVersion, items); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

// upsertStaging writes the per-shop staging rows, keyed by (shop_type,
// external_id). Re-processing the same product overwrites its staging row.
func (s *ProductStore) upsertStaging(ctx context.Context, tx *sql.Tx, items []*BatchItem) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO staging.products
			(shop_type, external_id, raw_product_id, name, price, content_hash, data, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (shop_type, external_id) DO UPDATE SET
			raw_product_id = EXCLUDED.raw_product_id,
			name           = EXCLUDED.name,
			price          = EXCLUDED.price,
			content_hash   = EXCLUDED.content_hash,
			data           = EXCLUDED.data,
			processed_at   = NOW()`)
	if err != nil {
		return fmt.Errorf("failed to prepare staging upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		name, _ := item.Record["title"].(string)

		var price sql.NullFloat64
		if v, ok := item.Record["current_price"].(float64); ok {
			price = sql.NullFloat64{Float64: v, Valid: true}
		}

		data, err := json.Marshal(item.Record)
		if err != nil {
			return fmt.Errorf("failed to encode staging record %s: %w", item.UnifiedID, err)
		}

		_, err = stmt.ExecContext(ctx,
			item.Record.ShopType(), item.ExternalID, item.Raw.ID, name, price, item.ContentHash, data)
		if err != nil {
			return fmt.Errorf("failed to upsert staging row %s: %w", item.UnifiedID, err)
		}
	}

	return nil
}

// upsertProcessed writes the canonical rows, one column per template field,
// keyed by unified id.
func (s *ProductStore) upsertProcessed(ctx context.Context, tx *sql.Tx, jobID, schemaVersion string, items []*BatchItem) error {
	stmt, err := tx.PrepareContext(ctx, processedUpsertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare processed upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, item := range items {
		args := processedArgs(item, jobID, schemaVersion)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert processed row %s: %w", item.UnifiedID, err)
		}
	}

	return nil
}

// processedUpsertSQL is generated from the template column list. Every column
// except the unified_id key is refreshed on conflict.
var processedUpsertSQL = func() string {
	placeholders := make([]string, len(processedColumns))
	updates := make([]string, 0, len(processedColumns))

	for i, col := range processedColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)

		if col != "unified_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	return fmt.Sprintf(`
		INSERT INTO processed.products (%s, created_at, updated_at)
		VALUES (%s, NOW(), NOW())
		ON CONFLICT (unified_id) DO UPDATE SET %s, updated_at = NOW()`,
		strings.Join(processedColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))
}()

// processedArgs flattens a batch item into the processed column order.
// Absent optional fields and nil nullable fields become SQL NULL.
func processedArgs(item *BatchItem, jobID, schemaVersion string) []any {
	args := make([]any, 0, len(processedColumns))

	for _, spec := range canonical.Fields() {
		value, present := item.Record[spec.Name]
		if !present || value == nil {
			args = append(args, nil)

			continue
		}

		args = append(args, value)
	}

	return append(args, item.ExternalID, schemaVersion, jobID, item.Raw.ID, item.ContentHash)
}

// ListProcessed returns one page of processed products matching the filter,
// newest first, plus the total match count.
func (s *ProductStore) ListProcessed(ctx context.Context, filter *ProcessedFilter) ([]*ProcessedProduct, int, error) {
	if filter == nil {
		filter = &ProcessedFilter{}
	}

	where, args := processedWhere(filter)

	var total int

	countQuery := "SELECT COUNT(*) FROM processed.products" + where
	if err := s.conn.DB().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count processed products: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s, created_at, updated_at
		FROM processed.products%s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(processedColumns, ", "), where, len(args)+1, len(args)+2)

	rows, err := s.conn.DB().QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list processed products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*ProcessedProduct

	for rows.Next() {
		product, err := scanProcessed(rows)
		if err != nil {
			return nil, 0, err
		}

		result = append(result, product)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate processed products: %w", err)
	}

	return result, total, nil
}

// GetProcessedByUnifiedID reads one processed product.
func (s *ProductStore) GetProcessedByUnifiedID(ctx context.Context, unifiedID string) (*ProcessedProduct, error) {
	query := fmt.Sprintf(`
		SELECT %s, created_at, updated_at
		FROM processed.products
		WHERE unified_id = $1`,
		strings.Join(processedColumns, ", "))

	row := s.conn.DB().QueryRowContext(ctx, query, unifiedID)

	product, err := scanProcessed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProcessedNotFound, unifiedID)
	}

	if err != nil {
		return nil, err
	}

	return product, nil
}

// ComplianceRate summarizes how a batch's canonical records hold up under
// strict template validation.
func (s *ProductStore) ComplianceRate(items []*BatchItem) *job.Compliance {
	return AuditCompliance(items)
}

// AuditCompliance validates each record against the template with extras
// disallowed. A pure in-memory pass; it never touches a connection.
func AuditCompliance(items []*BatchItem) *job.Compliance {
	validator := canonical.NewValidator()
	compliance := &job.Compliance{Total: len(items)}

	for _, item := range items {
		report := validator.Validate(item.Record, canonical.Options{CheckTypes: true})
		if report.OK {
			compliance.Compliant++

			continue
		}

		violation := fmt.Sprintf("%s: missing=%v extras=%v type_errors=%d",
			item.UnifiedID, report.Missing, report.Extras, len(report.TypeErrors))
		compliance.Violations = append(compliance.Violations, violation)
	}

	return compliance
}

// processedWhere builds the WHERE clause for a processed filter.
func processedWhere(filter *ProcessedFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	add := func(column, value string) {
		if value == "" {
			return
		}

		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	add("shop_type", filter.ShopType)
	add("schema_version", filter.SchemaVersion)
	add("job_id", filter.JobID)

	if len(clauses) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanProcessed reads one processed row back into a canonical record plus
// bookkeeping. NULL columns become absent keys for optional fields and nil
// values for nullable ones, restoring the record's original presence shape.
func scanProcessed(row rowScanner) (*ProcessedProduct, error) {
	specs := canonical.Fields()

	fieldDest := make([]any, len(specs))
	for i, spec := range specs {
		switch spec.Kind {
		case canonical.Number:
			fieldDest[i] = &sql.NullFloat64{}
		case canonical.Boolean:
			fieldDest[i] = &sql.NullBool{}
		default:
			fieldDest[i] = &sql.NullString{}
		}
	}

	var product ProcessedProduct

	dest := make([]any, 0, len(specs)+7)
	dest = append(dest, fieldDest...)
	dest = append(dest,
		&product.ExternalID, &product.SchemaVersion, &product.JobID,
		&product.RawProductID, &product.ContentHash,
		&product.CreatedAt, &product.UpdatedAt,
	)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan processed product: %w", err)
	}

	record := make(canonical.Record, len(specs))

	for i, spec := range specs {
		var (
			value any
			valid bool
		)

		switch d := fieldDest[i].(type) {
		case *sql.NullFloat64:
			value, valid = d.Float64, d.Valid
		case *sql.NullBool:
			value, valid = d.Bool, d.Valid
		case *sql.NullString:
			value, valid = d.String, d.Valid
		}

		switch {
		case valid:
			record[spec.Name] = value
		case spec.Presence == canonical.Nullable:
			record[spec.Name] = nil
		}
	}

	product.Record = record
	product.UnifiedID = record.UnifiedIDField()
	product.ShopType = record.ShopType()

	return &product, nil
}
