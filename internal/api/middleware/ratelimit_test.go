package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiterConfig() *Config {
	return &Config{
		GlobalRPS:       100,
		ClientRPS:       2,
		UnAuthRPS:       1,
		CleanupInterval: time.Minute,
		IdleTimeout:     time.Hour,
		MaxClients:      100,
	}
}

func TestInMemoryRateLimiterUnauthenticatedTier(t *testing.T) {
	rl := NewInMemoryRateLimiter(testLimiterConfig())
	defer func() { _ = rl.Close() }()

	// Burst = 2 × 1 RPS, so the third immediate request is rejected.
	assert.True(t, rl.Allow(""))
	assert.True(t, rl.Allow(""))
	assert.False(t, rl.Allow(""))
}

func TestInMemoryRateLimiterPerClientTier(t *testing.T) {
	rl := NewInMemoryRateLimiter(testLimiterConfig())
	defer func() { _ = rl.Close() }()

	// Burst = 2 × 2 RPS per client; clients do not share buckets.
	for i := 0; i < 4; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d", i)
	}

	assert.False(t, rl.Allow("client-a"))
	assert.True(t, rl.Allow("client-b"))
}

func TestInMemoryRateLimiterGlobalTier(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.GlobalRPS = 1
	cfg.GlobalBurst = 2
	cfg.ClientRPS = 100

	rl := NewInMemoryRateLimiter(cfg)
	defer func() { _ = rl.Close() }()

	assert.True(t, rl.Allow("client-a"))
	assert.True(t, rl.Allow("client-b"))
	assert.False(t, rl.Allow("client-c"), "global bucket exhausted")
}

func TestInMemoryRateLimiterBurstOverride(t *testing.T) {
	assert.Equal(t, 200, computeBurstCapacity(100, 0))
	assert.Equal(t, 500, computeBurstCapacity(100, 500))
}

func TestInMemoryRateLimiterCleanup(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.IdleTimeout = time.Nanosecond

	rl := NewInMemoryRateLimiter(cfg)
	defer func() { _ = rl.Close() }()

	rl.Allow("client-a")
	time.Sleep(time.Millisecond)
	rl.cleanup()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.perClient)
}

func TestRateLimitMiddlewareRejectsWithEnvelope(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.GlobalRPS = 1
	cfg.GlobalBurst = 1

	rl := NewInMemoryRateLimiter(cfg)
	defer func() { _ = rl.Close() }()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := RateLimit(rl, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), `"success":false`)
	assert.Contains(t, second.Body.String(), "RATE_LIMITED")
}

func TestRateLimitMiddlewareUsesClientContext(t *testing.T) {
	cfg := testLimiterConfig()
	cfg.UnAuthRPS = 1
	cfg.UnAuthBurst = 1
	cfg.ClientRPS = 100

	rl := NewInMemoryRateLimiter(cfg)
	defer func() { _ = rl.Close() }()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	handler := RateLimit(rl, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Authenticated requests ride the per-client bucket, not the tight
	// unauthenticated one.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req = req.WithContext(SetClientContext(req.Context(), ClientContext{ClientID: "n8n"}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
}
