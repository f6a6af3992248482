package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermarket-io/processor/internal/storage"
)

func testAuthLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newUsableKey generates a plaintext key plus its stored record.
func newUsableKey(t *testing.T, clientID string) (string, *storage.APIKey) {
	t.Helper()

	plaintext, err := storage.GenerateAPIKey(clientID)
	require.NoError(t, err)

	hash, err := storage.HashAPIKey(plaintext)
	require.NoError(t, err)

	return plaintext, &storage.APIKey{
		ID:          "key-" + clientID,
		KeyHash:     hash,
		ClientID:    clientID,
		Name:        "orchestrator",
		Permissions: []string{"jobs:write"},
		CreatedAt:   time.Now().UTC(),
		Active:      true,
	}
}

// issueTestKey generates a usable key and a store that resolves it.
func issueTestKey(t *testing.T) (string, *MockAPIKeyStore) {
	t.Helper()

	plaintext, apiKey := newUsableKey(t, "n8n")

	store := &MockAPIKeyStore{
		FindByKeyFunc: func(_ context.Context, key string) (*storage.APIKey, bool) {
			if key == plaintext {
				return apiKey, true
			}

			return nil, false
		},
	}

	return plaintext, store
}

func authHandler(store storage.APIKeyStore) http.Handler {
	return Authenticate(store, testAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientCtx, ok := GetClientContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Header().Set("X-Client-ID", clientCtx.ClientID)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthenticateValidKeyHeader(t *testing.T) {
	plaintext, store := issueTestKey(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Api-Key", plaintext)

	rec := httptest.NewRecorder()
	authHandler(store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n8n", rec.Header().Get("X-Client-ID"))
}

func TestAuthenticateBearerFallback(t *testing.T) {
	plaintext, store := issueTestKey(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+plaintext)

	rec := httptest.NewRecorder()
	authHandler(store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticateMissingKey(t *testing.T) {
	_, store := issueTestKey(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	authHandler(store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestAuthenticateUnknownKey(t *testing.T) {
	_, store := issueTestKey(t)

	other, err := storage.GenerateAPIKey("someone-else")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Api-Key", other)

	rec := httptest.NewRecorder()
	authHandler(store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateInactiveKeyForbidden(t *testing.T) {
	plaintext, apiKey := newUsableKey(t, "n8n")
	apiKey.Active = false

	store := &MockAPIKeyStore{
		FindByKeyFunc: func(context.Context, string) (*storage.APIKey, bool) {
			return apiKey, true
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Api-Key", plaintext)

	rec := httptest.NewRecorder()
	authHandler(store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")
}

func TestAuthenticateExpiredKey(t *testing.T) {
	plaintext, apiKey := newUsableKey(t, "n8n")

	expired := time.Now().Add(-time.Hour)
	apiKey.ExpiresAt = &expired

	store := &MockAPIKeyStore{
		FindByKeyFunc: func(context.Context, string) (*storage.APIKey, bool) {
			return apiKey, true
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("X-Api-Key", plaintext)

	rec := httptest.NewRecorder()
	authHandler(store).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatePublicEndpointBypass(t *testing.T) {
	RegisterPublicEndpoint("/public-probe")

	store := &MockAPIKeyStore{}
	handler := Authenticate(store, testAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/public-probe", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
		found    bool
	}{
		{"x-api-key wins", map[string]string{"X-Api-Key": "abc", "Authorization": "Bearer def"}, "abc", true},
		{"bearer fallback", map[string]string{"Authorization": "Bearer def"}, "def", true},
		{"no headers", map[string]string{}, "", false},
		{"non-bearer auth", map[string]string{"Authorization": "Basic xyz"}, "", false},
		{"newline rejected", map[string]string{"X-Api-Key": "abc\ndef"}, "", false},
		{"whitespace trimmed", map[string]string{"X-Api-Key": "  abc  "}, "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			key, found := extractAPIKey(req)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.expected, key)
		})
	}
}
