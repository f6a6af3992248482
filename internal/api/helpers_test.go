package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supermarket-io/processor/internal/aliasing"
	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/monitor"
	"github.com/supermarket-io/processor/internal/storage"
)

// fakeJobService stubs the job manager with per-method functions.
type fakeJobService struct {
	createFunc   func(ctx context.Context, params *job.CreateParams) (*job.Job, error)
	startFunc    func(ctx context.Context, id string) (*job.Job, error)
	cancelFunc   func(ctx context.Context, id, reason string) (*job.Job, error)
	getFunc      func(ctx context.Context, id string) (*job.Job, error)
	listFunc     func(ctx context.Context, filter *job.Filter) ([]*job.Job, int, error)
	errorsFunc   func(ctx context.Context, id string, limit, offset int) ([]*job.ProcessingError, int, error)
	progressFunc func(ctx context.Context, id string) (*job.Progress, error)
	healthErr    error
	activeCount  int
}

func (f *fakeJobService) Shops() []string {
	return []string{"ah", "jumbo", "aldi", "plus", "kruidvat"}
}

func (f *fakeJobService) Create(ctx context.Context, params *job.CreateParams) (*job.Job, error) {
	return f.createFunc(ctx, params)
}

func (f *fakeJobService) Start(ctx context.Context, id string) (*job.Job, error) {
	return f.startFunc(ctx, id)
}

func (f *fakeJobService) Cancel(ctx context.Context, id, reason string) (*job.Job, error) {
	return f.cancelFunc(ctx, id, reason)
}

func (f *fakeJobService) Get(ctx context.Context, id string) (*job.Job, error) {
	return f.getFunc(ctx, id)
}

func (f *fakeJobService) List(ctx context.Context, filter *job.Filter) ([]*job.Job, int, error) {
	return f.listFunc(ctx, filter)
}

func (f *fakeJobService) Errors(ctx context.Context, id string, limit, offset int) ([]*job.ProcessingError, int, error) {
	return f.errorsFunc(ctx, id, limit, offset)
}

func (f *fakeJobService) Progress(ctx context.Context, id string) (*job.Progress, error) {
	return f.progressFunc(ctx, id)
}

func (f *fakeJobService) ActiveCount() int { return f.activeCount }

func (f *fakeJobService) HealthCheck(context.Context) error { return f.healthErr }

// fakeCatalog stubs the processed-product store.
type fakeCatalog struct {
	listFunc func(ctx context.Context, filter *storage.ProcessedFilter) ([]*storage.ProcessedProduct, int, error)
	getFunc  func(ctx context.Context, unifiedID string) (*storage.ProcessedProduct, error)
}

func (f *fakeCatalog) ListProcessed(ctx context.Context, filter *storage.ProcessedFilter) ([]*storage.ProcessedProduct, int, error) {
	return f.listFunc(ctx, filter)
}

func (f *fakeCatalog) GetProcessedByUnifiedID(ctx context.Context, unifiedID string) (*storage.ProcessedProduct, error) {
	return f.getFunc(ctx, unifiedID)
}

// fakeReporter stubs the monitoring agent.
type fakeReporter struct {
	snapshot *monitor.Snapshot
}

func (f *fakeReporter) Latest() *monitor.Snapshot { return f.snapshot }

// newTestServer wires a server with fakes and a silent logger, returning the
// bare route mux so tests hit handlers without the middleware chain.
func newTestServer(deps *Dependencies) http.Handler {
	cfg := &ServerConfig{
		Port:            8080,
		Host:            "127.0.0.1",
		RequestTimeout:  time.Second,
		ShutdownTimeout: time.Second,
		LogLevel:        slog.LevelError,
		MaxRequestSize:  1 << 20,
	}

	server := &Server{
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		config:      cfg,
		startTime:   time.Now(),
		jobs:        deps.Jobs,
		products:    deps.Products,
		resolver:    deps.Resolver,
		monitor:     deps.Monitor,
		apiKeyStore: deps.APIKeys,
		rateLimiter: deps.RateLimiter,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	return mux
}

func testResolver() *aliasing.Resolver {
	return aliasing.NewResolver(&aliasing.Config{})
}

// sampleJob builds a pending job with plausible fields.
func sampleJob(id, shopType string, status job.Status) *job.Job {
	now := time.Now().UTC()

	return &job.Job{
		ID:            id,
		ShopType:      shopType,
		Status:        status,
		BatchSize:     100,
		SchemaVersion: "1.0.0",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// doJSON performs a request with a JSON body against the handler.
func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

// decodeEnvelope unmarshals a response envelope with Data left as raw JSON.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (*Response, map[string]any) {
	t.Helper()

	var envelope struct {
		Success   bool            `json:"success"`
		Data      json.RawMessage `json:"data"`
		Error     *ErrorBody      `json:"error"`
		Timestamp string          `json:"timestamp"`
	}

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	var data map[string]any

	if len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
	}

	return &Response{
		Success:   envelope.Success,
		Error:     envelope.Error,
		Timestamp: envelope.Timestamp,
	}, data
}
