package api

import (
	"net/http"
)

// handleGetProduct returns a single processed product by unified id.
// GET /products/{unified_id}
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	unifiedID := r.PathValue("unified_id")

	product, err := s.products.GetProcessedByUnifiedID(r.Context(), unifiedID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	WriteResponse(w, r, s.logger, http.StatusOK, toProductResponse(product))
}
