package api

import (
	"log/slog"
	"net/http"

	"github.com/supermarket-io/processor/internal/api/middleware"
	"github.com/supermarket-io/processor/internal/job"
)

// handleCreateJob creates a new processing job in pending state.
// POST /jobs
//
// Request validation (returns 4xx):
//   - 400 Bad Request: missing shop_type, invalid JSON, batch size out of range
//   - 409 Conflict: manager is shutting down
//
// Success response:
//   - 201 Created: the pending job
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if apiErr := s.decodeJSON(w, r, &req); apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	shopType, apiErr := s.resolveShopType(req.ShopType)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	created, err := s.jobs.Create(r.Context(), &job.CreateParams{
		ShopType:         shopType,
		BatchSize:        req.BatchSize,
		EnforceStructure: req.EnforceStructure,
		Metadata:         req.Metadata,
	})
	if err != nil {
		WriteErrorResponse(w, r, s.logger, FromDomainError(err))

		return
	}

	s.logger.Info("Job created",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("job_id", created.ID),
		slog.String("shop_type", created.ShopType),
		slog.Int("batch_size", created.BatchSize),
	)

	WriteResponse(w, r, s.logger, http.StatusCreated, toJobResponse(created))
}
