package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/supermarket-io/processor/internal/canonical"
	"github.com/supermarket-io/processor/internal/config"
)

// Sentinel errors for manager construction.
var (
	// ErrNilStore is returned when creating a manager without a store.
	ErrNilStore = errors.New("job store cannot be nil")
	// ErrNilRunner is returned when creating a manager without a batch runner.
	ErrNilRunner = errors.New("batch runner cannot be nil")
)

const (
	defaultBatchSize      = 100
	defaultMaxConcurrent  = 4
	defaultJobTimeout     = 30 * time.Minute
	defaultMaxJobProducts = 10000
	defaultCancelReason   = "Cancelled via API"
	shutdownGracePeriod   = 30 * time.Second
)

// Config tunes the manager. Zero values fall back to defaults on construction.
type Config struct {
	// DefaultBatchSize applies when a job is created without one.
	DefaultBatchSize int
	// MaxConcurrentJobs caps pipelines running at once in this process.
	MaxConcurrentJobs int
	// JobTimeout cancels a job cooperatively once exceeded (reason "timeout").
	JobTimeout time.Duration
	// SchemaVersion tags the processed rows new jobs write.
	SchemaVersion string
	// MaxJobProducts bounds the raw read that fixes total_products at start.
	MaxJobProducts int
	// EnforceStructure is the default for jobs created without an explicit
	// choice.
	EnforceStructure bool
}

// LoadConfig reads manager configuration from the environment.
func LoadConfig() *Config {
	return &Config{
		DefaultBatchSize:  config.GetEnvInt("BATCH_SIZE", defaultBatchSize),
		MaxConcurrentJobs: config.GetEnvInt("MAX_CONCURRENT_JOBS", defaultMaxConcurrent),
		JobTimeout:        config.GetEnvDuration("JOB_TIMEOUT", defaultJobTimeout),
		SchemaVersion:     config.GetEnvStr("SCHEMA_VERSION", canonical.DefaultSchemaVersion),
		MaxJobProducts:    config.GetEnvInt("MAX_JOB_PRODUCTS", defaultMaxJobProducts),
		EnforceStructure:  config.GetEnvBool("ENFORCE_STRUCTURE", false),
	}
}

// normalize fills invalid or unset config fields with defaults.
func (c *Config) normalize() {
	if c.DefaultBatchSize < MinBatchSize || c.DefaultBatchSize > MaxBatchSize {
		c.DefaultBatchSize = defaultBatchSize
	}

	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = defaultMaxConcurrent
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.SchemaVersion == "" {
		c.SchemaVersion = canonical.DefaultSchemaVersion
	}

	if c.MaxJobProducts <= 0 {
		c.MaxJobProducts = defaultMaxJobProducts
	}
}

// activeJob is the in-process state of one running pipeline: the cooperative
// cancellation flag and the latest progress snapshot.
type activeJob struct {
	id string

	mu              sync.Mutex
	cancelRequested bool
	cancelReason    string
	progress        *Progress
}

// requestCancel sets the cancellation flag. The first reason wins.
func (a *activeJob) requestCancel(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.cancelRequested {
		a.cancelRequested = true
		a.cancelReason = reason
	}
}

// cancelState reads the cancellation flag and reason.
func (a *activeJob) cancelState() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.cancelRequested, a.cancelReason
}

func (a *activeJob) setProgress(p *Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.progress = p
}

// snapshot returns a copy of the latest progress, or nil before the first
// batch completes.
func (a *activeJob) snapshot() *Progress {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.progress == nil {
		return nil
	}

	p := *a.progress

	return &p
}

// Manager owns every job from creation to terminal state and is the only
// mutator of job status. It runs one background pipeline per started job,
// capped by MaxConcurrentJobs, and fans lifecycle events out to listeners
// synchronously so event ordering follows batch ordering.
type Manager struct {
	store     Store
	runner    Runner
	listeners []Listener
	config    *Config
	logger    *slog.Logger
	shops     map[string]bool

	mu     sync.Mutex
	active map[string]*activeJob
	closed bool

	wg sync.WaitGroup
}

// NewManager creates a job manager. The listeners observe every job processed
// by this manager, in registration order.
func NewManager(store Store, runner Runner, cfg *Config, logger *slog.Logger, listeners ...Listener) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if runner == nil {
		return nil, ErrNilRunner
	}

	if cfg == nil {
		cfg = LoadConfig()
	}

	if logger == nil {
		logger = slog.Default()
	}

	cfg.normalize()

	shops := make(map[string]bool)
	for _, shop := range runner.Shops() {
		shops[shop] = true
	}

	return &Manager{
		store:     store,
		runner:    runner,
		listeners: listeners,
		config:    cfg,
		logger:    logger,
		shops:     shops,
		active:    make(map[string]*activeJob),
	}, nil
}

// Shops lists the shop types jobs can be created for, sorted.
func (m *Manager) Shops() []string {
	shops := make([]string, 0, len(m.shops))
	for shop := range m.shops {
		shops = append(shops, shop)
	}

	sort.Strings(shops)

	return shops
}

// Create validates the parameters and inserts a pending job.
func (m *Manager) Create(ctx context.Context, params *CreateParams) (*Job, error) {
	shop := strings.ToLower(strings.TrimSpace(params.ShopType))
	if !m.shops[shop] {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownShop, params.ShopType, strings.Join(m.Shops(), ", "))
	}

	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = m.config.DefaultBatchSize
	}

	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d (must be %d..%d)", ErrInvalidBatchSize, batchSize, MinBatchSize, MaxBatchSize)
	}

	enforce := m.config.EnforceStructure
	if params.EnforceStructure != nil {
		enforce = *params.EnforceStructure
	}

	now := time.Now().UTC()
	j := &Job{
		ID:               uuid.NewString(),
		ShopType:         shop,
		Status:           StatusPending,
		BatchSize:        batchSize,
		EnforceStructure: enforce,
		SchemaVersion:    m.config.SchemaVersion,
		Metadata:         params.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := m.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	m.logger.Info("job created",
		slog.String("job_id", j.ID),
		slog.String("shop_type", shop),
		slog.Int("batch_size", batchSize),
	)

	return j, nil
}

// Start transitions a pending job to running and spawns its pipeline.
//
// total_products is fixed here from a bounded raw read; rows inserted after
// this point are ignored until the next job. The job.started event is emitted
// before this method returns, so it is always observed before any batch event.
func (m *Manager) Start(ctx context.Context, id string) (*Job, error) {
	j, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateStateTransition(j.Status, StatusRunning); err != nil {
		return nil, err
	}

	total, err := m.runner.CountRaw(ctx, j.ShopType)
	if err != nil {
		return nil, fmt.Errorf("count raw rows: %w", err)
	}

	if total > m.config.MaxJobProducts {
		total = m.config.MaxJobProducts
	}

	active := &activeJob{id: id}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()

		return nil, ErrManagerClosed
	case len(m.active) >= m.config.MaxConcurrentJobs:
		count := len(m.active)
		m.mu.Unlock()

		return nil, fmt.Errorf("%w: %d of %d running", ErrTooManyActiveJobs, count, m.config.MaxConcurrentJobs)
	}

	if _, dup := m.active[id]; dup {
		m.mu.Unlock()

		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, StatusRunning, StatusRunning)
	}

	m.active[id] = active
	m.mu.Unlock()

	startedAt := time.Now().UTC()
	running := StatusRunning

	err = m.store.PatchJob(ctx, id, &Patch{
		Status:        &running,
		TotalProducts: &total,
		StartedAt:     &startedAt,
	})
	if err != nil {
		m.removeActive(id)

		return nil, fmt.Errorf("start job: %w", err)
	}

	j, err = m.store.GetJob(ctx, id)
	if err != nil {
		m.removeActive(id)

		return nil, err
	}

	totalBatches := 0
	if total > 0 {
		totalBatches = int(math.Ceil(float64(total) / float64(j.BatchSize)))
	}

	m.logger.Info("job started",
		slog.String("job_id", id),
		slog.String("shop_type", j.ShopType),
		slog.Int("total_products", total),
		slog.Int("total_batches", totalBatches),
	)

	for _, listener := range m.listeners {
		listener.JobStarted(j)
	}

	m.wg.Add(1)

	go m.run(j, active, totalBatches, startedAt)

	return j, nil
}

// Cancel requests cooperative cancellation.
//
// Pending jobs are finalized immediately. Running jobs have their flag set
// and transition at the next batch boundary; the returned job may therefore
// still read running. Terminal jobs are rejected with a lifecycle error.
func (m *Manager) Cancel(ctx context.Context, id, reason string) (*Job, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	if len(reason) > MaxReasonLength {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrInvalidReason, len(reason), MaxReasonLength)
	}

	j, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := ValidateStateTransition(j.Status, StatusCancelled); err != nil {
		return nil, err
	}

	if j.Status == StatusPending {
		return m.finalizeDetached(ctx, id, reason)
	}

	m.mu.Lock()
	active, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		// Running in the store but not in this process (e.g. a row left
		// behind by a crash): finalize directly.
		return m.finalizeDetached(ctx, id, reason)
	}

	active.requestCancel(reason)

	m.logger.Info("job cancellation requested",
		slog.String("job_id", id),
		slog.String("reason", reason),
	)

	return m.store.GetJob(ctx, id)
}

// finalizeDetached cancels a job that has no running pipeline.
func (m *Manager) finalizeDetached(ctx context.Context, id, reason string) (*Job, error) {
	now := time.Now().UTC()
	cancelled := StatusCancelled

	err := m.store.CompleteJob(ctx, id, &Patch{
		Status:       &cancelled,
		CompletedAt:  &now,
		ErrorMessage: &reason,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}

	j, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, listener := range m.listeners {
		listener.JobCancelled(j)
	}

	m.logger.Info("job cancelled",
		slog.String("job_id", id),
		slog.String("reason", reason),
	)

	return j, nil
}

// Get reads one job.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.GetJob(ctx, id)
}

// List returns jobs matching the filter plus the total match count.
func (m *Manager) List(ctx context.Context, filter *Filter) ([]*Job, int, error) {
	return m.store.ListJobs(ctx, filter)
}

// Errors returns one page of a job's error rows. The job must exist.
func (m *Manager) Errors(ctx context.Context, id string, limit, offset int) ([]*ProcessingError, int, error) {
	if _, err := m.store.GetJob(ctx, id); err != nil {
		return nil, 0, err
	}

	return m.store.ListErrors(ctx, id, limit, offset)
}

// Progress returns the live snapshot for running jobs, or a snapshot derived
// from the persisted counters otherwise.
func (m *Manager) Progress(ctx context.Context, id string) (*Progress, error) {
	m.mu.Lock()
	active, ok := m.active[id]
	m.mu.Unlock()

	if ok {
		if p := active.snapshot(); p != nil {
			return p, nil
		}
	}

	j, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	return progressFromJob(j), nil
}

// Active returns the ids of jobs with a pipeline running in this process,
// sorted. Safe for concurrent readers such as the monitoring agent.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// ActiveCount returns the number of pipelines running in this process.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.active)
}

// HealthCheck verifies the manager can reach its store.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

// Close stops accepting starts, requests cancellation of every active job,
// and waits for pipelines to reach a batch boundary and finish, bounded by a
// grace period. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true

	for _, active := range m.active {
		active.requestCancel("Shutdown requested")
	}
	m.mu.Unlock()

	done := make(chan struct{})

	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("job pipelines still running after shutdown grace period")
	}

	return nil
}

func (m *Manager) removeActive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, id)
}

// progressFromJob derives a progress snapshot from persisted counters, for
// jobs without a live pipeline in this process.
func progressFromJob(j *Job) *Progress {
	totalBatches := 0
	currentBatch := 0

	if j.BatchSize > 0 {
		if j.TotalProducts > 0 {
			totalBatches = int(math.Ceil(float64(j.TotalProducts) / float64(j.BatchSize)))
		}

		if j.ProcessedCount > 0 {
			currentBatch = int(math.Ceil(float64(j.ProcessedCount) / float64(j.BatchSize)))
		}
	}

	return &Progress{
		JobID:              j.ID,
		Status:             j.Status,
		TotalProducts:      j.TotalProducts,
		ProcessedCount:     j.ProcessedCount,
		SuccessCount:       j.SuccessCount,
		FailedCount:        j.FailedCount,
		SkippedCount:       j.SkippedCount,
		DedupedCount:       j.DedupedCount,
		CurrentBatch:       currentBatch,
		TotalBatches:       totalBatches,
		ProgressPercentage: Percentage(j.ProcessedCount, j.TotalProducts),
	}
}
