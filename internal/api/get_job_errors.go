package api

import (
	"net/http"
)

// handleJobErrors pages over the errors recorded for a job, newest first.
// GET /jobs/{id}/errors?limit=&offset=
func (s *Server) handleJobErrors(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit, offset, apiErr := parsePaging(r)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	errs, total, err := s.jobs.Errors(r.Context(), id, limit, offset)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	WriteResponse(w, r, s.logger, http.StatusOK, toErrorListResponse(errs, total, limit, offset))
}
