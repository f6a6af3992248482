package api

import (
	"log/slog"
	"net/http"

	"github.com/supermarket-io/processor/internal/api/middleware"
)

// handleStartJob transitions a pending job to running and launches the
// processing pipeline.
// POST /jobs/{id}/start
//
// Responses:
//   - 200 OK: the running job
//   - 404 Not Found: unknown job id
//   - 409 Conflict: job is not pending, terminal, or the concurrency cap is hit
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	started, err := s.jobs.Start(r.Context(), id)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	s.logger.Info("Job started",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("job_id", started.ID),
		slog.String("shop_type", started.ShopType),
		slog.Int("total_products", started.TotalProducts),
	)

	WriteResponse(w, r, s.logger, http.StatusOK, toJobResponse(started))
}
