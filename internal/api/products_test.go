package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/storage"
)

func sampleProduct(unifiedID string) *storage.ProcessedProduct {
	now := time.Now().UTC()

	return &storage.ProcessedProduct{
		UnifiedID:     unifiedID,
		ShopType:      "ah",
		ExternalID:    "wi43225",
		SchemaVersion: "1.0.0",
		JobID:         "job-1",
		ContentHash:   "9f2c",
		Record: canonical.Record{
			"name":  "Halfvolle melk",
			"price": 1.19,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestListProducts(t *testing.T) {
	var gotFilter *storage.ProcessedFilter

	catalog := &fakeCatalog{
		listFunc: func(_ context.Context, filter *storage.ProcessedFilter) ([]*storage.ProcessedProduct, int, error) {
			gotFilter = filter

			return []*storage.ProcessedProduct{sampleProduct("ah_wi43225")}, 1, nil
		},
	}

	handler := newTestServer(&Dependencies{Jobs: &fakeJobService{}, Products: catalog, Resolver: testResolver()})

	rec := doJSON(t, handler, http.MethodGet, "/products?shop_type=appie&schema_version=1.0.0&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, gotFilter)
	assert.Equal(t, "ah", gotFilter.ShopType, "alias resolved before the store sees it")
	assert.Equal(t, "1.0.0", gotFilter.SchemaVersion)
	assert.Equal(t, 5, gotFilter.Limit)

	_, data := decodeEnvelope(t, rec)
	assert.InDelta(t, 1, data["total"], 0)
	assert.Len(t, data["products"], 1)
}

func TestGetProduct(t *testing.T) {
	catalog := &fakeCatalog{
		getFunc: func(_ context.Context, unifiedID string) (*storage.ProcessedProduct, error) {
			if unifiedID != "ah_wi43225" {
				return nil, storage.ErrProcessedNotFound
			}

			return sampleProduct(unifiedID), nil
		},
	}

	handler := newTestServer(&Dependencies{Jobs: &fakeJobService{}, Products: catalog})

	rec := doJSON(t, handler, http.MethodGet, "/products/ah_wi43225", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, data := decodeEnvelope(t, rec)
	assert.Equal(t, "ah_wi43225", data["unified_id"])

	record, ok := data["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Halfvolle melk", record["name"])
}

func TestGetProductNotFound(t *testing.T) {
	catalog := &fakeCatalog{
		getFunc: func(context.Context, string) (*storage.ProcessedProduct, error) {
			return nil, storage.ErrProcessedNotFound
		},
	}

	handler := newTestServer(&Dependencies{Jobs: &fakeJobService{}, Products: catalog})

	rec := doJSON(t, handler, http.MethodGet, "/products/jumbo_999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	envelope, _ := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, CodeNotFound, envelope.Error.Code)
}
