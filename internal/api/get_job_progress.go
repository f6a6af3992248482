package api

import (
	"net/http"
)

// handleJobProgress returns a point-in-time progress snapshot for a job.
// Running jobs report live in-memory counters including the current batch;
// finished jobs report their persisted totals.
// GET /jobs/{id}/progress
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	progress, err := s.jobs.Progress(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	WriteResponse(w, r, s.logger, http.StatusOK, toProgressResponse(progress))
}
