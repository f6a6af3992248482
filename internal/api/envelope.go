// Package api provides the HTTP control surface for the processor service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/supermarket-io/processor/internal/api/middleware"
	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/storage"
)

// Machine-readable error codes carried in the response envelope.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeJobLifecycleError  = "JOB_LIFECYCLE_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

type (
	// Response is the envelope wrapped around every API payload.
	// Exactly one of Data and Error is set.
	Response struct {
		Success   bool       `json:"success"`
		Data      any        `json:"data,omitempty"`
		Error     *ErrorBody `json:"error,omitempty"`
		Timestamp string     `json:"timestamp"`
	}

	// ErrorBody is the error half of the envelope.
	ErrorBody struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}

	// Error pairs an envelope error body with the HTTP status it travels
	// under. Handlers build one via the constructors below and hand it to
	// WriteErrorResponse.
	Error struct {
		Status  int
		Code    string
		Message string
		Details map[string]any
	}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetails attaches structured context to the error body.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details

	return e
}

// BadRequest creates a 400 validation error.
func BadRequest(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidationError, Message: message}
}

// NotFound creates a 404 error.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// Conflict creates a 409 lifecycle error.
func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeJobLifecycleError, Message: message}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// TooManyRequests creates a 429 error.
func TooManyRequests(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Code: CodeRateLimited, Message: message}
}

// InternalServerError creates a 500 error.
func InternalServerError(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: message}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message}
}

// FromDomainError maps domain sentinel errors onto API errors. Lifecycle
// rejections surface as 409 so orchestrators can distinguish "retry later"
// from "bad request". Unrecognized errors become opaque 500s; the cause is
// logged server-side, never leaked to the caller.
func FromDomainError(err error) *Error {
	switch {
	case errors.Is(err, job.ErrJobNotFound),
		errors.Is(err, storage.ErrProcessedNotFound),
		errors.Is(err, storage.ErrRawProductNotFound):
		return NotFound(err.Error())
	case errors.Is(err, job.ErrUnknownShop),
		errors.Is(err, job.ErrInvalidBatchSize),
		errors.Is(err, job.ErrInvalidReason):
		return BadRequest(err.Error())
	case errors.Is(err, job.ErrInvalidTransition),
		errors.Is(err, job.ErrTerminalStateImmutable),
		errors.Is(err, job.ErrTooManyActiveJobs),
		errors.Is(err, job.ErrManagerClosed):
		return Conflict(err.Error())
	default:
		return InternalServerError("an internal error occurred")
	}
}

// WriteResponse writes a success envelope with the given payload.
func WriteResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, data any) {
	envelope := &Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	writeEnvelope(w, r, logger, status, envelope)
}

// WriteErrorResponse writes an error envelope.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, apiErr *Error) {
	envelope := &Response{
		Success: false,
		Error: &ErrorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	writeEnvelope(w, r, logger, apiErr.Status, envelope)
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, envelope *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.Error("Failed to encode response envelope",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
}
