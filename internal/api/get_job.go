package api

import (
	"net/http"
)

// handleGetJob returns a single job by id.
// GET /jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	WriteResponse(w, r, s.logger, http.StatusOK, toJobResponse(found))
}
