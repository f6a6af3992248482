package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supermarket-io/processor/internal/job"
	"github.com/supermarket-io/processor/internal/storage"
	"github.com/supermarket-io/processor/internal/webhook"
)

type fakeProbe struct {
	stats     storage.PoolStats
	healthErr error
}

func (f *fakeProbe) Stats() storage.PoolStats          { return f.stats }
func (f *fakeProbe) HealthCheck(context.Context) error { return f.healthErr }

type fakeErrorStats struct {
	stats *storage.ErrorStats
	err   error
}

func (f *fakeErrorStats) ErrorStatsSince(context.Context, time.Time) (*storage.ErrorStats, error) {
	return f.stats, f.err
}

type fakeActive struct{ count int }

func (f *fakeActive) ActiveCount() int { return f.count }

type fakePoster struct {
	mu     sync.Mutex
	events []webhook.Event
	data   []map[string]any
}

func (f *fakePoster) Post(event webhook.Event, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)
	f.data = append(f.data, data)
}

func (f *fakePoster) posted() []webhook.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]webhook.Event, len(f.events))
	copy(out, f.events)

	return out
}

type agentFixture struct {
	agent  *Agent
	probe  *fakeProbe
	stats  *fakeErrorStats
	poster *fakePoster
}

func newAgentFixture(config *Config) *agentFixture {
	if config == nil {
		config = &Config{
			Interval:       time.Minute,
			Cooldown:       time.Minute,
			MinSuccessRate: 0.9,
			MaxErrors24h:   100,
			MaxMemoryMB:    1 << 20,
			PoolUsageRate:  0.9,
		}
	}

	probe := &fakeProbe{stats: storage.PoolStats{OpenConnections: 2, InUse: 1, MaxOpen: 10}}
	stats := &fakeErrorStats{stats: &storage.ErrorStats{Total: 3, Unresolved: 1}}
	poster := &fakePoster{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	return &agentFixture{
		agent:  NewAgent(config, probe, stats, &fakeActive{count: 2}, poster, logger),
		probe:  probe,
		stats:  stats,
		poster: poster,
	}
}

func TestAgentSampleHealthy(t *testing.T) {
	f := newAgentFixture(nil)

	snapshot := f.agent.Sample(context.Background())

	assert.Equal(t, StatusHealthy, snapshot.Status)
	assert.True(t, snapshot.Database.Reachable)
	assert.Equal(t, 2, snapshot.ActiveJobs)
	assert.Equal(t, 3, snapshot.Errors24h.Total)
	assert.Positive(t, snapshot.Memory.Goroutines)
	assert.Empty(t, f.poster.posted())

	assert.Same(t, snapshot, f.agent.Latest())
}

func TestAgentSampleDatabaseUnreachable(t *testing.T) {
	f := newAgentFixture(nil)
	f.probe.healthErr = errors.New("connection refused")

	snapshot := f.agent.Sample(context.Background())

	assert.Equal(t, StatusDegraded, snapshot.Status)
	assert.False(t, snapshot.Database.Reachable)

	events := f.poster.posted()
	require.Len(t, events, 1)
	assert.Equal(t, webhook.EventHighErrorRate, events[0])
	assert.Equal(t, AlertDatabaseUnreachable, f.poster.data[0]["alert_type"])

	// Second sample inside the cooldown stays quiet.
	f.agent.Sample(context.Background())
	assert.Len(t, f.poster.posted(), 1)
}

func TestAgentSampleErrorBacklog(t *testing.T) {
	f := newAgentFixture(nil)
	f.stats.stats = &storage.ErrorStats{
		Total:      150,
		Unresolved: 150,
		ByType:     []storage.ErrorTypeCount{{ErrorType: job.ErrorTypeValidation, Count: 150}},
	}

	snapshot := f.agent.Sample(context.Background())

	assert.Equal(t, StatusDegraded, snapshot.Status)

	require.Len(t, f.poster.posted(), 1)
	assert.Equal(t, AlertErrorBacklog, f.poster.data[0]["alert_type"])
	assert.Equal(t, 150, f.poster.data[0]["total_errors"])
	assert.Equal(t, []string{job.ErrorTypeValidation}, f.poster.data[0]["error_types"])
}

func TestAgentSampleStatsErrorTolerated(t *testing.T) {
	f := newAgentFixture(nil)
	f.stats.err = errors.New("query timeout")
	f.stats.stats = nil

	snapshot := f.agent.Sample(context.Background())

	assert.Equal(t, StatusHealthy, snapshot.Status)
	assert.Nil(t, snapshot.Errors24h)
}

func TestAgentSamplePoolSaturation(t *testing.T) {
	f := newAgentFixture(nil)
	f.probe.stats = storage.PoolStats{OpenConnections: 10, InUse: 10, MaxOpen: 10}

	snapshot := f.agent.Sample(context.Background())

	assert.Equal(t, StatusDegraded, snapshot.Status)
}

func TestAgentHighErrorRateAlert(t *testing.T) {
	f := newAgentFixture(nil)

	f.agent.JobStarted(&job.Job{ID: "j1", ShopType: "jumbo"})
	f.agent.BatchCompleted("j1", 1, &job.BatchResult{
		Errors: []*job.ProcessingError{
			{ErrorType: job.ErrorTypeValidation},
			{ErrorType: job.ErrorTypeTransformation},
			{ErrorType: job.ErrorTypeValidation},
		},
	})

	f.agent.JobProgress(&job.Progress{
		JobID:          "j1",
		ProcessedCount: 100,
		SuccessCount:   60,
		FailedCount:    40,
	})

	require.Len(t, f.poster.posted(), 1)
	data := f.poster.data[0]
	assert.Equal(t, AlertHighErrorRate, data["alert_type"])
	assert.Equal(t, "j1", data["job_id"])
	assert.Equal(t, "jumbo", data["shop_type"])
	assert.InDelta(t, 0.4, data["error_rate"], 0.001)
	assert.Equal(t, 40, data["total_errors"])
	assert.Equal(t, 100, data["processed_count"])
	assert.Equal(t, []string{job.ErrorTypeTransformation, job.ErrorTypeValidation}, data["error_types"])
}

func TestAgentHighErrorRateCooldown(t *testing.T) {
	f := newAgentFixture(nil)
	f.agent.JobStarted(&job.Job{ID: "j1", ShopType: "ah"})

	beat := &job.Progress{JobID: "j1", ProcessedCount: 100, SuccessCount: 50, FailedCount: 50}
	f.agent.JobProgress(beat)
	f.agent.JobProgress(beat)

	assert.Len(t, f.poster.posted(), 1, "repeat within cooldown suppressed")

	// A different job has its own cooldown key.
	f.agent.JobStarted(&job.Job{ID: "j2", ShopType: "ah"})
	f.agent.JobProgress(&job.Progress{JobID: "j2", ProcessedCount: 100, SuccessCount: 50, FailedCount: 50})

	assert.Len(t, f.poster.posted(), 2)
}

func TestAgentHighErrorRateSkipsSmallSamples(t *testing.T) {
	f := newAgentFixture(nil)
	f.agent.JobStarted(&job.Job{ID: "j1", ShopType: "ah"})

	// All rows failed but too few to judge.
	f.agent.JobProgress(&job.Progress{JobID: "j1", ProcessedCount: 5, FailedCount: 5})

	assert.Empty(t, f.poster.posted())
}

func TestAgentHealthyRateQuiet(t *testing.T) {
	f := newAgentFixture(nil)
	f.agent.JobStarted(&job.Job{ID: "j1", ShopType: "ah"})

	f.agent.JobProgress(&job.Progress{JobID: "j1", ProcessedCount: 100, SuccessCount: 95, FailedCount: 5})

	assert.Empty(t, f.poster.posted())
}

func TestAgentForgetsTerminalJobs(t *testing.T) {
	f := newAgentFixture(nil)
	f.agent.JobStarted(&job.Job{ID: "j1", ShopType: "plus"})
	f.agent.JobCompleted(&job.Job{ID: "j1"}, 0)

	// Progress after terminal still alerts, but without job context.
	f.agent.JobProgress(&job.Progress{JobID: "j1", ProcessedCount: 100, SuccessCount: 10, FailedCount: 90})

	require.Len(t, f.poster.posted(), 1)
	assert.Equal(t, "", f.poster.data[0]["shop_type"])
}

func TestAgentStartAndClose(t *testing.T) {
	f := newAgentFixture(&Config{
		Version:        "v1.2.3",
		Interval:       20 * time.Millisecond,
		Cooldown:       time.Minute,
		MinSuccessRate: 0.9,
		MaxErrors24h:   100,
		MaxMemoryMB:    1 << 20,
		PoolUsageRate:  0.9,
	})

	f.agent.Start()
	time.Sleep(80 * time.Millisecond)
	require.NoError(t, f.agent.Close())

	events := f.poster.posted()
	require.NotEmpty(t, events)

	for _, event := range events {
		assert.Equal(t, webhook.EventHealthCheck, event)
	}

	assert.NotNil(t, f.agent.Latest())
}

func TestAgentHealthCheckPayload(t *testing.T) {
	f := newAgentFixture(&Config{
		Version:        "v1.2.3",
		Interval:       time.Minute,
		Cooldown:       time.Minute,
		MinSuccessRate: 0.9,
		MaxErrors24h:   100,
		MaxMemoryMB:    1 << 20,
		PoolUsageRate:  0.9,
	})

	snapshot := f.agent.Sample(context.Background())
	data := f.agent.healthData(snapshot)

	assert.Equal(t, StatusHealthy, data["status"])
	assert.Equal(t, "v1.2.3", data["version"])
	assert.Equal(t, 2, data["active_jobs"])
	assert.Equal(t, true, data["database_ok"])
	assert.Equal(t, 3, data["errors_24h"])
}

func TestAgentCloseWithoutStart(t *testing.T) {
	f := newAgentFixture(nil)
	require.NoError(t, f.agent.Close())
}
