package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/config"
)

func setupStorageTest(t *testing.T) (context.Context, *Connection) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	return ctx, NewConnectionFromDB(testDB.Connection, logger)
}

func testBatchItem(rawID int64, externalID, hash string, price float64) *BatchItem {
	record := canonical.EnsureComplete(canonical.Record{
		"unified_id":    "ah_" + externalID + "_1.0.0",
		"shop_type":     "ah",
		"title":         "Halfvolle melk",
		"brand":         "AH",
		"current_price": price,
	})

	return &BatchItem{
		Raw:         &RawProduct{ID: rawID},
		ExternalID:  externalID,
		UnifiedID:   record.UnifiedIDField(),
		ContentHash: hash,
		Record:      record,
	}
}

func TestProductStoreRawLifecycle(t *testing.T) {
	ctx, conn := setupStorageTest(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := NewProductStore(conn, OutputBoth, logger)

	payloads := []map[string]any{
		{"webshopId": "wi1", "title": "Melk"},
		{"webshopId": "wi2", "title": "Kaas"},
		{"webshopId": "wi3", "title": "Brood"},
	}

	inserted, err := store.InsertRaw(ctx, "ah", "scrape-1", payloads)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	count, err := store.CountRaw(ctx, "ah")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = store.CountRaw(ctx, "jumbo")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Windows over the fixed total never skip or repeat rows.
	first, err := store.ListRaw(ctx, "ah", 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := store.ListRaw(ctx, "ah", 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Less(t, first[1].ID, second[0].ID)
	assert.Equal(t, "wi1", first[0].Data["webshopId"])

	fetched, err := store.GetRawByID(ctx, first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "scrape-1", fetched.ScrapeID)

	_, err = store.GetRawByID(ctx, 99999)
	require.ErrorIs(t, err, ErrRawProductNotFound)
}

func TestProductStorePersistBatch(t *testing.T) {
	ctx, conn := setupStorageTest(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := NewProductStore(conn, OutputBoth, logger)

	_, err := store.InsertRaw(ctx, "ah", "", []map[string]any{{"webshopId": "wi1"}})
	require.NoError(t, err)

	raws, err := store.ListRaw(ctx, "ah", 10, 0)
	require.NoError(t, err)
	require.Len(t, raws, 1)

	item := testBatchItem(raws[0].ID, "wi1", "hash-v1", 1.99)
	require.NoError(t, store.PersistBatch(ctx, "job-1", "1.0.0", []*BatchItem{item}))

	// The processed row reads back with its canonical record intact.
	product, err := store.GetProcessedByUnifiedID(ctx, item.UnifiedID)
	require.NoError(t, err)
	assert.Equal(t, "ah", product.ShopType)
	assert.Equal(t, "wi1", product.ExternalID)
	assert.Equal(t, "job-1", product.JobID)
	assert.Equal(t, "hash-v1", product.ContentHash)
	assert.Equal(t, "Halfvolle melk", product.Record["title"])
	assert.InDelta(t, 1.99, product.Record["current_price"], 0.001)

	// Nullable fields come back present and nil, optional fields absent.
	value, present := product.Record["main_category"]
	assert.True(t, present)
	assert.Nil(t, value)
	_, present = product.Record["unit_price"]
	assert.False(t, present)

	report := canonical.NewValidator().Validate(product.Record, canonical.Options{CheckTypes: true})
	assert.True(t, report.OK)

	// Re-persisting the same product updates in place.
	updated := testBatchItem(raws[0].ID, "wi1", "hash-v2", 2.49)
	require.NoError(t, store.PersistBatch(ctx, "job-2", "1.0.0", []*BatchItem{updated}))

	product, err = store.GetProcessedByUnifiedID(ctx, item.UnifiedID)
	require.NoError(t, err)
	assert.Equal(t, "hash-v2", product.ContentHash)
	assert.Equal(t, "job-2", product.JobID)

	listed, total, err := store.ListProcessed(ctx, &ProcessedFilter{ShopType: "ah"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, listed, 1)

	require.ErrorIs(t, store.PersistBatch(ctx, "job-3", "1.0.0", nil), ErrEmptyBatch)
}

func TestProductStoreFetchContentHashes(t *testing.T) {
	ctx, conn := setupStorageTest(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := NewProductStore(conn, OutputProcessed, logger)

	item := testBatchItem(0, "wi9", "stable-hash", 0.99)
	require.NoError(t, store.PersistBatch(ctx, "job-1", "1.0.0", []*BatchItem{item}))

	hashes, err := store.FetchContentHashes(ctx, []string{item.UnifiedID, "ah_missing_1.0.0"})
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	assert.Equal(t, "stable-hash", hashes[item.UnifiedID])

	empty, err := store.FetchContentHashes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProductStoreStagingOnlyTarget(t *testing.T) {
	ctx, conn := setupStorageTest(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := NewProductStore(conn, OutputStaging, logger)

	item := testBatchItem(0, "wi5", "hash", 3.49)
	require.NoError(t, store.PersistBatch(ctx, "job-1", "1.0.0", []*BatchItem{item}))

	// Staging-only writes never reach the processed table.
	_, err := store.GetProcessedByUnifiedID(ctx, item.UnifiedID)
	require.ErrorIs(t, err, ErrProcessedNotFound)

	var count int
	err = conn.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM staging.products WHERE external_id = 'wi5'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
