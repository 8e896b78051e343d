// Package analytics batches usage events to the workspace API. Events are
// telemetry, not durable data: a full queue drops new events and a batch
// that cannot be delivered within the retry budget is abandoned.
package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/transport"
)

const batchPath = "/events/batch"

// Event is one usage event.
type Event struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Props     map[string]any `json:"props,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Tracker queues events and delivers them in batches from a single worker
// goroutine.
type Tracker struct {
	transport transport.Transport
	cfg       *config.AnalyticsConfig
	logger    *events.Logger

	queue chan Event
	wg    sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	dropped  int
	disabled bool
}

// New creates a tracker and starts its worker. A disabled config yields a
// no-op tracker.
func New(transport transport.Transport, cfg *config.AnalyticsConfig, logger *events.Logger) *Tracker {
	if cfg == nil || !cfg.Enabled {
		return Disabled()
	}

	t := &Tracker{
		transport: transport,
		cfg:       cfg,
		logger:    logger.WithField("component", "analytics"),
		queue:     make(chan Event, cfg.QueueSize),
	}

	t.wg.Add(1)
	go t.worker()

	return t
}

// Disabled returns a tracker that accepts and discards everything.
func Disabled() *Tracker {
	return &Tracker{disabled: true}
}

// Track enqueues an event. It never blocks; a full queue drops the event
// and counts it.
func (t *Tracker) Track(name string, props map[string]any) {
	if t == nil || t.disabled {
		return
	}

	ev := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Props:     props,
		Timestamp: time.Now().UTC(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	select {
	case t.queue <- ev:
	default:
		t.dropped++
		t.logger.WithField("event", name).Debug("Analytics queue full, dropping event")
	}
}

// Dropped returns how many events were lost to queue overflow or abandoned
// with an undeliverable batch.
func (t *Tracker) Dropped() int {
	if t == nil || t.disabled {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close stops the worker after a final flush of everything still queued.
func (t *Tracker) Close(ctx context.Context) error {
	if t == nil || t.disabled {
		return nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker accumulates events and flushes on batch size or interval.
func (t *Tracker) worker() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []Event
	for {
		select {
		case ev, ok := <-t.queue:
			if !ok {
				if len(batch) > 0 {
					t.deliver(batch)
				}
				return
			}

			batch = append(batch, ev)
			if len(batch) >= t.cfg.BatchSize {
				t.deliver(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				t.deliver(batch)
				batch = nil
			}
		}
	}
}

// deliver posts one batch, retrying transient failures within the elapsed
// budget. An undeliverable batch is dropped.
func (t *Tracker) deliver(batch []Event) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond

	operation := func() (struct{}, error) {
		_, err := t.transport.PostJSON(context.Background(), batchPath, map[string]any{
			"events": batch,
		})
		if err != nil {
			// The transport already retried server-side failures;
			// a rejected batch will never be accepted.
			var apiErr *models.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(context.Background(), operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(t.cfg.MaxElapsed))
	if err != nil {
		t.logger.WithError(err).WithField("events", len(batch)).Warn("Analytics batch dropped")

		t.mu.Lock()
		t.dropped += len(batch)
		t.mu.Unlock()
		return
	}

	t.logger.WithField("events", len(batch)).Debug("Analytics batch delivered")
}
