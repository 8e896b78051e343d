// Package autosave decides when an edited record is persisted. A Coordinator
// watches snapshots the caller supplies on every edit, coalesces rapid edits
// into a single debounced save, retries failed saves, and never blocks the
// editing path.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// Default scheduling intervals.
const (
	DefaultDebounceInterval = 1500 * time.Millisecond
	DefaultRetryInterval    = 5 * time.Second
)

// ErrClosed is returned by SaveNow after the coordinator has been closed.
var ErrClosed = errors.New("autosave: coordinator closed")

// PersistFunc saves a record snapshot. The returned record is treated
// opaquely; only success or failure matters to the coordinator.
type PersistFunc func(ctx context.Context, record models.Record) (models.Record, error)

// Detector reports whether current differs from lastSaved enough to warrant
// a persist.
type Detector func(current, lastSaved models.Record) bool

// Config contains coordinator scheduling configuration.
type Config struct {
	// Identity names the record being edited. Empty means a new, unsaved
	// entity: all saving is disabled until the caller creates the entity
	// and builds a coordinator with its ID.
	Identity string

	// Active gates automatic saving initially; see SetActive.
	Active bool

	DebounceInterval time.Duration
	RetryInterval    time.Duration

	// Detector decides whether an observed snapshot needs saving. Nil
	// means DeepDetector.
	Detector Detector
}

// Event reports a save status transition.
type Event struct {
	Status    models.SaveStatus
	Timestamp time.Time

	// Record is the snapshot that was persisted, set on transitions to
	// saved.
	Record models.Record

	// Err is the persist failure, set on transitions to error.
	Err error
}

// Coordinator schedules saves for one edited record. Construct with New, one
// instance per record per session; Close cancels all pending work.
type Coordinator struct {
	persist  PersistFunc
	identity string
	detector Detector
	debounce time.Duration
	retry    time.Duration
	logger   *events.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	active      bool
	status      models.SaveStatus
	current     models.Record
	lastSaved   models.Record
	lastSavedAt time.Time
	failures    int
	closed      bool

	// Timer handles. At most one of each is outstanding; the generation
	// counters invalidate handlers from timers that were replaced after
	// they had already fired.
	debounceTimer *time.Timer
	debounceGen   uint64
	retryTimer    *time.Timer
	retryGen      uint64

	eventCh      chan Event
	eventsClosed bool
}

// New creates a coordinator. cfg may be nil for defaults (which, having no
// identity, never save). persist must be set when cfg.Identity is non-empty.
func New(persist PersistFunc, cfg *Config, logger *events.Logger) *Coordinator {
	c := &Coordinator{
		persist:  persist,
		detector: DeepDetector,
		debounce: DefaultDebounceInterval,
		retry:    DefaultRetryInterval,
		logger:   logger.WithField("component", "autosave"),
		status:   models.SaveStatusSaved,
		eventCh:  make(chan Event, 32),
	}

	if cfg != nil {
		c.identity = cfg.Identity
		c.active = cfg.Active
		if cfg.DebounceInterval > 0 {
			c.debounce = cfg.DebounceInterval
		}
		if cfg.RetryInterval > 0 {
			c.retry = cfg.RetryInterval
		}
		if cfg.Detector != nil {
			c.detector = cfg.Detector
		}
	}

	if c.identity != "" {
		c.logger = c.logger.WithField("identity", c.identity)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Events returns the status transition channel. It is closed by Close.
func (c *Coordinator) Events() <-chan Event {
	return c.eventCh
}

// Status returns the current save status.
func (c *Coordinator) Status() models.SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastSavedAt returns when the last successful save completed, or the zero
// time if nothing has been saved since the baseline was declared.
func (c *Coordinator) LastSavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSavedAt
}

// Observe records the latest edit snapshot. When the snapshot differs from
// the last saved one, the debounce timer is (re)scheduled so rapid edits
// collapse into a single save of the newest value. Returns immediately.
func (c *Coordinator) Observe(record models.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.current = record.Clone()

	// Scheduling is gated; the snapshot above is still kept so a later
	// flush saves the newest value.
	if c.identity == "" || !c.active {
		return
	}

	if !c.detector(c.current, c.lastSaved) {
		return
	}

	if c.status != models.SaveStatusSaving {
		c.setStatusLocked(models.SaveStatusUnsaved, nil, nil)
	}

	// A fresh edit supersedes any pending retry; the debounced save
	// covers it.
	c.stopRetryLocked()
	c.scheduleDebounceLocked()
}

// TriggerSave cancels any pending debounce timer and starts a save attempt
// immediately. Fire and forget; the outcome surfaces via Status and Events.
// Safe to call at any time, including while a save is already in flight.
func (c *Coordinator) TriggerSave() {
	c.mu.Lock()
	c.stopDebounceLocked()
	c.mu.Unlock()

	go c.attempt(c.ctx)
}

// SaveNow runs a save attempt synchronously and returns its outcome. Used
// for flush-on-close paths that must wait for settlement. A nil error with
// no identity means there was nothing to save.
func (c *Coordinator) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopDebounceLocked()
	c.mu.Unlock()

	return c.attempt(ctx)
}

// ResetSaveState declares record (nil allowed) as the new baseline: the
// snapshot is treated as durably persisted, status becomes saved, and all
// pending timers are discarded. Call after loading a fresh record so "just
// loaded" is not mistaken for "needs saving".
func (c *Coordinator) ResetSaveState(record models.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.stopDebounceLocked()
	c.stopRetryLocked()

	c.current = record.Clone()
	c.lastSaved = record.Clone()
	c.lastSavedAt = time.Time{}
	c.failures = 0
	c.setStatusLocked(models.SaveStatusSaved, nil, nil)
}

// SetLastSaved replaces the last saved snapshot without touching status or
// timers. Used when an authoritative copy arrives from elsewhere (a realtime
// update) and should be treated as already durable.
func (c *Coordinator) SetLastSaved(record models.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.lastSaved = record.Clone()
}

// SetActive gates automatic saving. Deactivating while edits are unsaved
// flushes them with an immediate save attempt; a pending retry survives
// deactivation so a failed save still heals.
func (c *Coordinator) SetActive(active bool) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return
	}

	wasActive := c.active
	c.active = active

	flush := wasActive && !active && c.status == models.SaveStatusUnsaved
	if flush {
		c.stopDebounceLocked()
	}
	c.mu.Unlock()

	if flush {
		go c.attempt(c.ctx)
	}
}

// Close cancels both timers and the coordinator context. No save fires after
// Close returns; an in-flight persist result is discarded. The events
// channel is closed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	c.stopDebounceLocked()
	c.stopRetryLocked()
	c.cancel()

	if !c.eventsClosed {
		close(c.eventCh)
		c.eventsClosed = true
	}
}

// attempt runs the save algorithm once: mark saving, persist the current
// snapshot, then record the outcome. Persist errors are absorbed here; they
// reach the caller only through status, events, and the SaveNow return.
func (c *Coordinator) attempt(ctx context.Context) error {
	c.mu.Lock()

	if c.closed || c.identity == "" || c.persist == nil {
		c.mu.Unlock()
		return nil
	}

	// This attempt supersedes any pending retry.
	c.stopRetryLocked()

	snapshot := c.current.Clone()
	attemptNo := c.failures + 1
	c.setStatusLocked(models.SaveStatusSaving, nil, nil)
	c.mu.Unlock()

	started := time.Now()
	_, err := c.persist(ctx, snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		// Too late to matter; the caller tore the session down.
		return err
	}

	if err != nil {
		c.failures++
		saveErr := &models.SaveError{RecordID: c.identity, Attempt: attemptNo, Err: err}
		c.logger.WithError(saveErr).WithField("attempt", attemptNo).Warn("Save failed, retry scheduled")
		c.setStatusLocked(models.SaveStatusError, nil, saveErr)
		c.scheduleRetryLocked()
		return saveErr
	}

	// The snapshot that was sent becomes the baseline, not anything
	// captured after the round trip; edits that raced the save are
	// re-detected on the next Observe.
	c.lastSaved = snapshot
	c.lastSavedAt = time.Now()
	c.failures = 0
	c.setStatusLocked(models.SaveStatusSaved, snapshot, nil)

	c.logger.WithField("duration", time.Since(started).String()).Debug("Record saved")
	return nil
}

// Locking: every helper below expects c.mu held.

func (c *Coordinator) scheduleDebounceLocked() {
	c.stopDebounceLocked()

	gen := c.debounceGen
	c.debounceTimer = time.AfterFunc(c.debounce, func() {
		c.debounceFired(gen)
	})
}

func (c *Coordinator) stopDebounceLocked() {
	c.debounceGen++
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
}

func (c *Coordinator) scheduleRetryLocked() {
	c.stopRetryLocked()

	gen := c.retryGen
	c.retryTimer = time.AfterFunc(c.retry, func() {
		c.retryFired(gen)
	})
}

func (c *Coordinator) stopRetryLocked() {
	c.retryGen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Coordinator) debounceFired(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.debounceGen || !c.active {
		c.mu.Unlock()
		return
	}
	c.debounceTimer = nil
	c.mu.Unlock()

	_ = c.attempt(c.ctx)
}

func (c *Coordinator) retryFired(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.retryGen {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	c.logger.Debug("Retrying failed save")
	_ = c.attempt(c.ctx)
}

func (c *Coordinator) setStatusLocked(status models.SaveStatus, record models.Record, err error) {
	if c.status == status {
		return
	}
	c.status = status
	c.emitLocked(Event{
		Status:    status,
		Timestamp: time.Now(),
		Record:    record,
		Err:       err,
	})
}

func (c *Coordinator) emitLocked(event Event) {
	if c.eventsClosed {
		return
	}

	select {
	case c.eventCh <- event:
	default:
		// Channel full, drop event
		c.logger.Debug("Event channel full, dropping event")
	}
}
