package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/supermarket-io/processor/internal/api/middleware"
)

// handleWebhookTrigger accepts the inbound n8n trigger: a JSON body with an
// action and the shop to process. Only action "process" starts work; anything
// else is rejected without touching the job manager. The endpoint is public;
// the orchestrator authenticates on its own side and this server only ever
// starts work it could start anyway.
// POST /webhook/n8n
//
// Responses:
//   - 200 OK: the running job
//   - 400 Bad Request: unsupported action, missing shop_type, or invalid overrides
//   - 409 Conflict: concurrency cap hit or manager shutting down
func (s *Server) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if apiErr := s.decodeJSON(w, r, &req); apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	if req.Action != "process" {
		WriteErrorResponse(w, r, s.logger, BadRequest(
			fmt.Sprintf("unsupported webhook action %q, expected \"process\"", req.Action)))

		return
	}

	shopType, apiErr := s.resolveShopType(req.ShopType)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	started, apiErr := s.triggerJob(r.Context(), shopType, &req)
	if apiErr != nil {
		WriteErrorResponse(w, r, s.logger, apiErr)

		return
	}

	s.logger.Info("Webhook processing triggered",
		slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		slog.String("job_id", started.ID),
		slog.String("shop_type", started.ShopType),
	)

	WriteResponse(w, r, s.logger, http.StatusOK, toJobResponse(started))
}
