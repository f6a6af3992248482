package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/supermarket-io/processor/internal/api/middleware"
	"github.com/supermarket-io/processor/internal/job"
)

// handleProcessShop creates a job for the shop in the path and starts it
// immediately. The optional body carries batch size and structure overrides.
// POST /process/{shopType}
//
// Responses:
//   - 200 OK: the running job
//   - 400 Bad Request: unknown shop or invalid overrides
//   - 409 Conflict: concurrency cap hit or manager shutting down
func (s *Server) handleProcessShop(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest

	// The body is optional for one-shot triggers.
	if r.ContentLength != 0 {
		if apiErr := s.decodeJSON(w, r, &req); apiErr != nil {
			WriteErrorResponse(w, r, s.logger, apiErr)

			return
		}
	}

	shopType, apiErr := s.resolveShopType(r.PathValue("shopType"))
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	started, apiErr := s.triggerJob(r.Context(), shopType, &req)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	s.logger.Info("One-shot processing triggered",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("job_id", started.ID),
		slog.String("shop_type", started.ShopType),
	)

	WriteResponse(w, r, s.logger, http.StatusOK, toJobResponse(started))
}

// triggerJob runs the create-and-start sequence shared by the one-shot and
// webhook trigger endpoints. A job that was created but failed to start is
// left pending; the error reported is the start failure.
func (s *Server) triggerJob(ctx context.Context, shopType string, req *TriggerRequest) (*job.Job, *Error) {
	created, err := s.jobs.Create(ctx, &job.CreateParams{
		ShopType:         shopType,
		BatchSize:        req.BatchSize,
		EnforceStructure: req.EnforceStructure,
		Metadata:         req.Metadata,
	})
	if err != nil {
		return nil, FromDomainError(err)
	}

	started, err := s.jobs.Start(ctx, created.ID)
	if err != nil {
		apiErr := FromDomainError(err)

		return nil, apiErr.WithDetails(map[string]any{"job_id": created.ID})
	}

	return started, nil
}
