package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/supermarket-io/processor/internal/job"
)

// Envelope is the wire shape of every webhook delivery.
type Envelope struct {
	Event     Event          `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Source    string         `json:"source"`
}

// source identifies this engine in every envelope.
const source = "supermarket-processor"

// Dispatcher posts events to the orchestrator. It implements job.Listener so
// the manager's lifecycle events flow out without the manager knowing about
// HTTP. All delivery is asynchronous and best-effort.
type Dispatcher struct {
	config *Config
	client *http.Client
	logger *slog.Logger

	// semaphore bounds in-flight deliveries.
	semaphore chan struct{}
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Compile-time check that the dispatcher observes the job lifecycle.
var _ job.Listener = (*Dispatcher)(nil)

// NewDispatcher creates a webhook dispatcher. An empty base URL produces a
// dispatcher that drops every event silently.
func NewDispatcher(config *Config, logger *slog.Logger) *Dispatcher {
	config.normalize()

	return &Dispatcher{
		config:    config,
		client:    &http.Client{Timeout: config.Timeout},
		logger:    logger,
		semaphore: make(chan struct{}, config.MaxInFlight),
	}
}

// Post delivers one event asynchronously. It never returns an error: dispatch
// failures are logged and dropped, and overflow beyond the in-flight bound is
// dropped with a warning.
func (d *Dispatcher) Post(event Event, data map[string]any) {
	if !d.config.Enabled() {
		return
	}

	path, ok := event.Path()
	if !ok {
		d.logger.Warn("dropping webhook event with no delivery path",
			slog.String("event", string(event)))

		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()

		return
	}

	select {
	case d.semaphore <- struct{}{}:
		d.wg.Add(1)
	default:
		d.mu.Unlock()
		d.logger.Warn("dropping webhook event, too many deliveries in flight",
			slog.String("event", string(event)))

		return
	}
	d.mu.Unlock()

	envelope := &Envelope{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Source:    source,
	}

	go func() {
		defer d.wg.Done()
		defer func() { <-d.semaphore }()

		d.deliver(envelope, d.config.BaseURL+path)
	}()
}

// deliver attempts one event until it lands or attempts run out, backing off
// exponentially between attempts.
func (d *Dispatcher) deliver(envelope *Envelope, url string) {
	body, err := json.Marshal(envelope)
	if err != nil {
		d.logger.Error("failed to encode webhook envelope",
			slog.String("event", string(envelope.Event)),
			slog.String("error", err.Error()),
		)

		return
	}

	backoff := backoffBase

	for attempt := 1; attempt <= d.config.RetryAttempts; attempt++ {
		err := d.attempt(url, body)
		if err == nil {
			d.logger.Debug("webhook delivered",
				slog.String("event", string(envelope.Event)),
				slog.Int("attempt", attempt),
			)

			return
		}

		d.logger.Warn("webhook delivery attempt failed",
			slog.String("event", string(envelope.Event)),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", d.config.RetryAttempts),
			slog.String("error", err.Error()),
		)

		if attempt < d.config.RetryAttempts {
			time.Sleep(backoff)

			backoff *= backoffFactor
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}

	// Final failure: log and drop. Never reaches the job.
	d.logger.Error(job.ErrorTypeWebhookDelivery,
		slog.String("event", string(envelope.Event)),
		slog.String("url", url),
	)
}

// attempt performs a single HTTP POST.
func (d *Dispatcher) attempt(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}

	return nil
}

// Close stops accepting events and drains in-flight deliveries.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()

	return nil
}

// JobStarted posts job.started.
func (d *Dispatcher) JobStarted(j *job.Job) {
	d.Post(EventJobStarted, jobStartedData(j))
}

// BatchStarted is observed for ordering only; no event is defined for it.
func (d *Dispatcher) BatchStarted(string, int, int) {}

// BatchCompleted is observed for ordering only; no event is defined for it.
func (d *Dispatcher) BatchCompleted(string, int, *job.BatchResult) {}

// JobProgress posts job.progress on every tenth batch and on the final batch.
func (d *Dispatcher) JobProgress(p *job.Progress) {
	if p.CurrentBatch%progressEvery != 0 && p.CurrentBatch != p.TotalBatches {
		return
	}

	d.Post(EventJobProgress, jobProgressData(p))
}

// JobCompleted posts job.completed.
func (d *Dispatcher) JobCompleted(j *job.Job, errorCount int) {
	d.Post(EventJobCompleted, jobCompletedData(j, errorCount))
}

// JobFailed posts job.failed.
func (d *Dispatcher) JobFailed(j *job.Job) {
	d.Post(EventJobFailed, jobFailedData(j))
}

// JobCancelled posts job.completed with the cancelled status; cancellation
// has no event of its own.
func (d *Dispatcher) JobCancelled(j *job.Job) {
	d.Post(EventJobCompleted, jobCompletedData(j, 0))
}

// AlertData builds the processing.high_error_rate payload used by the
// monitoring agent.
func AlertData(jobID, alertType, shopType string, errorRate float64, totalErrors, processedCount int, errorTypes []string) map[string]any {
	if errorTypes == nil {
		errorTypes = []string{}
	}

	return map[string]any{
		"job_id":          jobID,
		"alert_type":      alertType,
		"shop_type":       shopType,
		"error_rate":      errorRate,
		"total_errors":    totalErrors,
		"processed_count": processedCount,
		"error_types":     errorTypes,
	}
}
