package api

import (
	"net/http"

	"github.com/supermarket-io/processor/internal/job"
)

// handleListJobs pages over jobs, newest first, optionally filtered by
// status and shop type.
// GET /jobs?status=&shop_type=&limit=&offset=
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, apiErr := parsePaging(r)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	filter := &job.Filter{Limit: limit, Offset: offset}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := job.Status(raw)
		if !status.IsValid() {
			WriteErrorResponse(w, r, s.logger, BadRequest("unknown status: "+raw))

			return
		}

		filter.Status = status
	}

	if raw := r.URL.Query().Get("shop_type"); raw != "" {
		shopType, shopErr := s.resolveShopType(raw)
		if shopErr != nil {
			WriteErrorResponse(w, r, s.logger, shopErr)

			return
		}

		filter.ShopType = shopType
	}

	jobs, total, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	WriteResponse(w, r, s.logger, http.StatusOK, toJobListResponse(jobs, total, limit, offset))
}
