package api

import (
	"net/http"

	"github.com/supermarket-io/processor/internal/storage"
)

// handleListProducts pages over processed products, optionally filtered by
// shop type, schema version, and producing job.
// GET /products?shop_type=&schema_version=&job_id=&limit=&offset=
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, apiErr := parsePaging(r)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	filter := &storage.ProcessedFilter{
		SchemaVersion: r.URL.Query().Get("schema_version"),
		JobID:         r.URL.Query().Get("job_id"),
		Limit:         limit,
		Offset:        offset,
	}

	if raw := r.URL.Query().Get("shop_type"); raw != "" {
		shopType, shopErr := s.resolveShopType(raw)
		if shopErr != nil {
			WriteErrorResponse(w, r, s.logger, shopErr)

			return
		}

		filter.ShopType = shopType
	}

	products, total, err := s.products.ListProcessed(r.Context(), filter)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	WriteResponse(w, r, s.logger, http.StatusOK, toProductListResponse(products, total, limit, offset))
}
