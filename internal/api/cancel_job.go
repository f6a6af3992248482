package api

import (
	"log/slog"
	"net/http"

	"github.com/supermarket-io/processor/internal/api/middleware"
)

// handleCancelJob cancels a pending or running job. Running jobs stop at the
// next batch boundary; completed batches stay persisted.
// POST /jobs/{id}/cancel
//
// Responses:
//   - 200 OK: the cancelled job
//   - 400 Bad Request: missing or oversized reason
//   - 404 Not Found: unknown job id
//   - 409 Conflict: job already terminal
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req CancelJobRequest
	if apiErr := s.decodeJSON(w, r, &req); apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	cancelled, err := s.jobs.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	s.logger.Info("Job cancelled",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("job_id", cancelled.ID),
		slog.String("reason", req.Reason),
	)

	WriteResponse(w, r, s.logger, http.StatusOK, toJobResponse(cancelled))
}
