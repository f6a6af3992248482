package monitor

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/storage"
	"github.com/supermarket-io/processor/internal/webhook"
)

// errorWindow is the lookback for the error-backlog sample.
const errorWindow = 24 * time.Hour

// DatabaseProbe reports pool state and reachability. Implemented by
// storage.Connection.
type DatabaseProbe interface {
	Stats() storage.PoolStats
	HealthCheck(ctx context.Context) error
}

// ErrorStatsSource summarizes recorded processing errors over a window.
// Implemented by storage.JobStore.
type ErrorStatsSource interface {
	ErrorStatsSince(ctx context.Context, since time.Time) (*storage.ErrorStats, error)
}

// ActiveCounter reports how many jobs are currently running. Implemented by
// job.Manager.
type ActiveCounter interface {
	ActiveCount() int
}

// Poster delivers events outward. Implemented by webhook.Dispatcher.
type Poster interface {
	Post(event webhook.Event, data map[string]any)
}

type (
	// MemoryStats is the process memory slice of a snapshot.
	MemoryStats struct {
		HeapAllocMB uint64 `json:"heap_alloc_mb"`
		SysMB       uint64 `json:"sys_mb"`
		Goroutines  int    `json:"goroutines"`
	}

	// DatabaseHealth is the database slice of a snapshot.
	DatabaseHealth struct {
		Reachable bool              `json:"reachable"`
		Pool      storage.PoolStats `json:"pool"`
	}

	// Snapshot is one point-in-time health sample, served by the health
	// endpoint and posted on the system.health_check event.
	Snapshot struct {
		Status        string              `json:"status"`
		Timestamp     time.Time           `json:"timestamp"`
		UptimeSeconds int64               `json:"uptime_seconds"`
		ActiveJobs    int                 `json:"active_jobs"`
		Database      DatabaseHealth      `json:"database"`
		Errors24h     *storage.ErrorStats `json:"errors_24h"`
		Memory        MemoryStats         `json:"memory"`
	}
)

// Snapshot statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Alert types raised by the agent.
const (
	AlertHighErrorRate       = "high_error_rate"
	AlertErrorBacklog        = "error_backlog"
	AlertDatabaseUnreachable = "database_unreachable"
	AlertMemoryPressure      = "memory_pressure"
	AlertPoolSaturation      = "pool_saturation"
)

// jobState is what the agent remembers about a running job between lifecycle
// events.
type jobState struct {
	shopType   string
	errorTypes map[string]struct{}
}

// Agent samples engine health on an interval and watches the job lifecycle
// for runaway error rates. It implements job.Listener; all checks are cheap
// and never block the pipeline beyond a map update.
type Agent struct {
	config *Config
	db     DatabaseProbe
	errors ErrorStatsSource
	active ActiveCounter
	poster Poster
	logger *slog.Logger

	startedAt time.Time

	mu        sync.Mutex
	lastAlert map[string]time.Time
	jobs      map[string]*jobState
	latest    *Snapshot

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

// Compile-time check that the agent observes the job lifecycle.
var _ job.Listener = (*Agent)(nil)

// NewAgent creates a monitoring agent. It does nothing until Start.
func NewAgent(config *Config, db DatabaseProbe, errors ErrorStatsSource, active ActiveCounter, poster Poster, logger *slog.Logger) *Agent {
	config.normalize()

	return &Agent{
		config:    config,
		db:        db,
		errors:    errors,
		active:    active,
		poster:    poster,
		logger:    logger,
		startedAt: time.Now().UTC(),
		lastAlert: make(map[string]time.Time),
		jobs:      make(map[string]*jobState),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sampling loop. Safe to call once; later calls are no-ops.
func (a *Agent) Start() {
	a.startOnce.Do(func() {
		a.started = true

		go a.run()
	})
}

func (a *Agent) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	// One sample up front so the health endpoint has data immediately.
	a.Sample(context.Background())

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			snapshot := a.Sample(context.Background())
			a.poster.Post(webhook.EventHealthCheck, a.healthData(snapshot))
		}
	}
}

// Close stops the sampling loop and waits for it to exit.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		close(a.stop)

		if a.started {
			<-a.done
		}
	})

	return nil
}

// Sample takes one health sample, evaluates system thresholds, and stores the
// snapshot for the health endpoint.
func (a *Agent) Sample(ctx context.Context) *Snapshot {
	now := time.Now().UTC()

	snapshot := &Snapshot{
		Status:        StatusHealthy,
		Timestamp:     now,
		UptimeSeconds: int64(now.Sub(a.startedAt).Seconds()),
		ActiveJobs:    a.active.ActiveCount(),
	}

	snapshot.Database.Pool = a.db.Stats()
	snapshot.Database.Reachable = true

	if err := a.db.HealthCheck(ctx); err != nil {
		snapshot.Database.Reachable = false
		snapshot.Status = StatusDegraded

		a.alert(AlertDatabaseUnreachable, "global", func() {
			a.logger.Error("database unreachable",
				slog.String("error", err.Error()))
			a.poster.Post(webhook.EventHighErrorRate,
				webhook.AlertData("", AlertDatabaseUnreachable, "", 0, 0, 0, nil))
		})
	}

	stats, err := a.errors.ErrorStatsSince(ctx, now.Add(-errorWindow))
	if err != nil {
		a.logger.Warn("error stats sample failed",
			slog.String("error", err.Error()))
	} else {
		snapshot.Errors24h = stats

		if stats.Total > a.config.MaxErrors24h {
			snapshot.Status = StatusDegraded

			a.alert(AlertErrorBacklog, "global", func() {
				a.logger.Warn("error backlog over threshold",
					slog.Int("total", stats.Total),
					slog.Int("threshold", a.config.MaxErrors24h))
				a.poster.Post(webhook.EventHighErrorRate,
					webhook.AlertData("", AlertErrorBacklog, "", 0, stats.Total, 0, typeNames(stats.ByType)))
			})
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snapshot.Memory = MemoryStats{
		HeapAllocMB: mem.HeapAlloc / (1 << 20),
		SysMB:       mem.Sys / (1 << 20),
		Goroutines:  runtime.NumGoroutine(),
	}

	if snapshot.Memory.HeapAllocMB > uint64(a.config.MaxMemoryMB) {
		snapshot.Status = StatusDegraded

		a.alert(AlertMemoryPressure, "global", func() {
			a.logger.Warn("heap over threshold",
				slog.Uint64("heap_alloc_mb", snapshot.Memory.HeapAllocMB),
				slog.Int("threshold_mb", a.config.MaxMemoryMB))
		})
	}

	pool := snapshot.Database.Pool
	if pool.MaxOpen > 0 && float64(pool.InUse)/float64(pool.MaxOpen) >= a.config.PoolUsageRate {
		snapshot.Status = StatusDegraded

		a.alert(AlertPoolSaturation, "global", func() {
			a.logger.Warn("connection pool near saturation",
				slog.Int("in_use", pool.InUse),
				slog.Int("max_open", pool.MaxOpen))
		})
	}

	a.mu.Lock()
	a.latest = snapshot
	a.mu.Unlock()

	return snapshot
}

// Latest returns the most recent snapshot, or nil before the first sample.
func (a *Agent) Latest() *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.latest
}

// alert fires fn unless the same alert key fired within the cooldown.
func (a *Agent) alert(alertType, key string, fn func()) {
	composite := alertType + "|" + key

	a.mu.Lock()
	last, seen := a.lastAlert[composite]
	now := time.Now()

	if seen && now.Sub(last) < a.config.Cooldown {
		a.mu.Unlock()

		return
	}

	a.lastAlert[composite] = now
	a.mu.Unlock()

	fn()
}

// JobStarted begins tracking a job's shop and error types.
func (a *Agent) JobStarted(j *job.Job) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.jobs[j.ID] = &jobState{
		shopType:   j.ShopType,
		errorTypes: make(map[string]struct{}),
	}
}

// BatchStarted is observed for ordering only.
func (a *Agent) BatchStarted(string, int, int) {}

// BatchCompleted accumulates the error types seen so far on the job.
func (a *Agent) BatchCompleted(jobID string, _ int, result *job.BatchResult) {
	if result == nil || len(result.Errors) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.jobs[jobID]
	if !ok {
		return
	}

	for _, e := range result.Errors {
		state.errorTypes[e.ErrorType] = struct{}{}
	}
}

// JobProgress checks the job's running success rate and raises
// processing.high_error_rate when it falls under the configured floor. The
// check is skipped until enough rows have been processed for the rate to
// mean anything.
func (a *Agent) JobProgress(p *job.Progress) {
	if p.ProcessedCount < minProcessedForRate {
		return
	}

	successRate := float64(p.SuccessCount) / float64(p.ProcessedCount)
	if successRate >= a.config.MinSuccessRate {
		return
	}

	a.mu.Lock()
	shopType := ""
	var errorTypes []string

	if state, ok := a.jobs[p.JobID]; ok {
		shopType = state.shopType
		errorTypes = make([]string, 0, len(state.errorTypes))

		for name := range state.errorTypes {
			errorTypes = append(errorTypes, name)
		}
	}
	a.mu.Unlock()

	sort.Strings(errorTypes)
	errorRate := 1 - successRate

	a.alert(AlertHighErrorRate, p.JobID, func() {
		a.logger.Warn("job error rate over threshold",
			slog.String("job_id", p.JobID),
			slog.String("shop_type", shopType),
			slog.Float64("error_rate", errorRate),
		)
		a.poster.Post(webhook.EventHighErrorRate,
			webhook.AlertData(p.JobID, AlertHighErrorRate, shopType, errorRate, p.FailedCount, p.ProcessedCount, errorTypes))
	})
}

// JobCompleted stops tracking the job.
func (a *Agent) JobCompleted(j *job.Job, _ int) { a.forget(j.ID) }

// JobFailed stops tracking the job.
func (a *Agent) JobFailed(j *job.Job) { a.forget(j.ID) }

// JobCancelled stops tracking the job.
func (a *Agent) JobCancelled(j *job.Job) { a.forget(j.ID) }

func (a *Agent) forget(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.jobs, jobID)
}

// healthData builds the system.health_check payload.
func (a *Agent) healthData(s *Snapshot) map[string]any {
	data := map[string]any{
		"status":         s.Status,
		"version":        a.config.Version,
		"uptime_seconds": s.UptimeSeconds,
		"active_jobs":    s.ActiveJobs,
		"database_ok":    s.Database.Reachable,
		"goroutines":     s.Memory.Goroutines,
		"heap_alloc_mb":  s.Memory.HeapAllocMB,
	}

	if s.Errors24h != nil {
		data["errors_24h"] = s.Errors24h.Total
		data["errors_unresolved"] = s.Errors24h.Unresolved
	}

	return data
}

// typeNames flattens an error-frequency breakdown to its type names.
func typeNames(byType []storage.ErrorTypeCount) []string {
	names := make([]string, 0, len(byType))
	for _, t := range byType {
		names = append(names, t.ErrorType)
	}

	return names
}
