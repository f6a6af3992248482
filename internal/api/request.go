package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Paging bounds shared by every list endpoint.
const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// decodeJSON reads and decodes a JSON request body into dst, bounded by the
// configured max request size. Unknown fields are rejected so typos in
// orchestrator payloads fail loudly instead of silently defaulting.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *Error {
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		return BadRequest("Content-Type must be application/json")
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return BadRequest("request body exceeds maximum size")
		}

		if errors.Is(err, io.EOF) {
			return BadRequest("request body is empty")
		}

		return BadRequest("invalid JSON: " + err.Error())
	}

	return nil
}

// parsePaging extracts limit/offset query parameters with defaults and caps.
func parsePaging(r *http.Request) (int, int, *Error) {
	limit := defaultPageLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, 0, BadRequest("limit must be a positive integer")
		}

		if parsed > maxPageLimit {
			parsed = maxPageLimit
		}

		limit = parsed
	}

	offset := 0

	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, BadRequest("offset must be a non-negative integer")
		}

		offset = parsed
	}

	return limit, offset, nil
}

// resolveShopType normalizes a caller-supplied shop name through the alias
// resolver. Strict membership is enforced downstream by the job manager.
func (s *Server) resolveShopType(name string) (string, *Error) {
	if strings.TrimSpace(name) == "" {
		return "", BadRequest("shop_type is required")
	}

	if s.resolver == nil {
		return strings.ToLower(strings.TrimSpace(name)), nil
	}

	return s.resolver.Resolve(name), nil
}
