package storage

import (
	"time"

	"github.com/supermarket-io/processor/internal/canonical"
)

type (
	// RawProduct is one scraped payload exactly as it arrived, before any
	// transformation. Rows are append-only.
	RawProduct struct {
		ID        int64          `json:"id"`
		ShopType  string         `json:"shop_type"`
		ScrapeID  string         `json:"scrape_id,omitempty"`
		Data      map[string]any `json:"data"`
		ScrapedAt time.Time      `json:"scraped_at"`
		CreatedAt time.Time      `json:"created_at"`
	}

	// StagingProduct is the lightweight per-shop row written alongside the
	// canonical output, keyed by (shop_type, external_id).
	StagingProduct struct {
		ID           int64          `json:"id"`
		ShopType     string         `json:"shop_type"`
		ExternalID   string         `json:"external_id"`
		RawProductID int64          `json:"raw_product_id"`
		Name         string         `json:"name"`
		Price        *float64       `json:"price,omitempty"`
		ContentHash  string         `json:"content_hash"`
		Data         map[string]any `json:"data"`
		ProcessedAt  time.Time      `json:"processed_at"`
	}

	// ProcessedProduct is one canonical record plus its bookkeeping columns,
	// keyed by unified id.
	ProcessedProduct struct {
		UnifiedID     string           `json:"unified_id"`
		ShopType      string           `json:"shop_type"`
		ExternalID    string           `json:"external_id"`
		SchemaVersion string           `json:"schema_version"`
		JobID         string           `json:"job_id"`
		RawProductID  int64            `json:"raw_product_id"`
		ContentHash   string           `json:"content_hash"`
		Record        canonical.Record `json:"record"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}

	// BatchItem is one successfully transformed row ready for persistence.
	BatchItem struct {
		Raw         *RawProduct
		ExternalID  string
		UnifiedID   string
		ContentHash string
		Record      canonical.Record
	}

	// ProcessedFilter narrows processed-product listings. Zero values mean "any".
	ProcessedFilter struct {
		ShopType      string
		SchemaVersion string
		JobID         string
		Limit         int
		Offset        int
	}

	// ErrorTypeCount is one slice of the error-frequency breakdown.
	ErrorTypeCount struct {
		ErrorType string `json:"error_type"`
		Count     int    `json:"count"`
	}

	// ErrorStats summarizes recorded processing errors over a window,
	// consumed by the monitoring agent.
	ErrorStats struct {
		Total      int              `json:"total"`
		Unresolved int              `json:"unresolved"`
		ByType     []ErrorTypeCount `json:"by_type"`
	}
)
