package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/daybookhq/scribe/internal/autosave"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/state"
)

const eventBuffer = 32

// EventType identifies what a session event reports.
type EventType string

const (
	// EventSaveStatus reports an auto-save status transition.
	EventSaveStatus EventType = "save_status"

	// EventRemoteUpdate reports that another client changed this record.
	EventRemoteUpdate EventType = "remote_update"

	// EventRemoteDelete reports that another client deleted this record.
	EventRemoteDelete EventType = "remote_delete"

	// EventStreamEnd reports that the realtime update stream closed.
	EventStreamEnd EventType = "stream_end"
)

// Event is delivered to the CLI for rendering.
type Event struct {
	Type      EventType
	Status    models.SaveStatus
	Record    models.Record
	Err       error
	Timestamp time.Time
}

// Session is one open record under edit. All methods are safe for
// concurrent use.
type Session struct {
	kind models.RecordKind
	id   string
	key  string

	coord    *autosave.Coordinator
	drafts   state.Store
	detector autosave.Detector
	logger   *events.Logger

	mu           sync.Mutex
	record       models.Record
	draft        *models.Draft
	closed       bool
	eventsClosed bool

	eventCh      chan Event
	streamCancel context.CancelFunc
	unlock       state.UnlockFunc
	flushTimeout time.Duration
	wg           sync.WaitGroup
}

// Events returns the session event channel. It closes when the session
// closes.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// Kind returns the record kind under edit.
func (s *Session) Kind() models.RecordKind { return s.kind }

// ID returns the record ID under edit.
func (s *Session) ID() string { return s.id }

// Record returns a copy of the working record.
func (s *Session) Record() models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Status returns the current save status.
func (s *Session) Status() models.SaveStatus {
	return s.coord.Status()
}

// LastSavedAt returns when the record last persisted.
func (s *Session) LastSavedAt() time.Time {
	return s.coord.LastSavedAt()
}

// Apply merges fields into the working record, journals the draft, and
// hands the result to the auto-save coordinator.
func (s *Session) Apply(fields map[string]any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.record = s.record.Merge(fields)
	s.draft.Touch(s.record)
	if err := s.drafts.Save(s.draft); err != nil {
		s.logger.WithError(err).Warn("Failed to journal draft")
	}
	record := s.record
	s.mu.Unlock()

	s.coord.Observe(record)
}

// SetContent replaces the record's body field.
func (s *Session) SetContent(content string) {
	s.Apply(map[string]any{s.kind.ContentField(): content})
}

// SaveNow persists the working record immediately, bypassing the debounce
// window.
func (s *Session) SaveNow(ctx context.Context) error {
	return s.coord.SaveNow(ctx)
}

// Close ends the session. Unsaved or failed work is flushed synchronously
// within the flush timeout; a clean journal entry is removed, a dirty one
// kept for resume.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.streamCancel != nil {
		s.streamCancel()
	}

	var flushErr error
	switch s.coord.Status() {
	case models.SaveStatusUnsaved, models.SaveStatusError:
		flushCtx, cancel := context.WithTimeout(ctx, s.flushTimeout)
		flushErr = s.coord.SaveNow(flushCtx)
		cancel()
		if flushErr != nil {
			s.logger.WithError(flushErr).Warn("Final save failed, dirty draft kept for resume")
		}
	}

	s.coord.Close()
	s.wg.Wait()

	s.mu.Lock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.eventCh)
	}
	dirty := s.draft.Dirty
	key := s.key
	s.mu.Unlock()

	if !dirty {
		if err := s.drafts.Delete(key); err != nil && !errors.Is(err, state.ErrDraftNotFound) {
			s.logger.WithError(err).Warn("Failed to clear draft journal")
		}
	}

	s.unlock()

	s.logger.WithField("dirty", dirty).Info("Edit session closed")
	return flushErr
}

// forwardSaveEvents relays coordinator transitions onto the session channel
// and keeps the draft journal in step with successful saves.
func (s *Session) forwardSaveEvents() {
	defer s.wg.Done()

	for ev := range s.coord.Events() {
		if ev.Status == models.SaveStatusSaved && len(ev.Record) > 0 {
			s.markClean(ev.Record)
		}

		s.emit(Event{
			Type:      EventSaveStatus,
			Status:    ev.Status,
			Record:    ev.Record,
			Err:       ev.Err,
			Timestamp: ev.Timestamp,
		})
	}
}

// consumeUpdates applies realtime frames for this record.
func (s *Session) consumeUpdates(updates <-chan models.UpdateMessage) {
	defer s.wg.Done()

	for msg := range updates {
		switch msg.Op {
		case models.UpdateOpRecordUpdated:
			if msg.Matches(s.kind, s.id) {
				s.handleRemoteUpdate(msg)
			}
		case models.UpdateOpRecordDeleted:
			if msg.Matches(s.kind, s.id) {
				s.logger.Warn("Record deleted by another client")
				s.emit(Event{Type: EventRemoteDelete, Timestamp: time.Now()})
			}
		case models.UpdateOpError:
			s.logger.WithField("code", msg.Code).Warn("Update stream reported an error")
		}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.emit(Event{Type: EventStreamEnd, Timestamp: time.Now()})
	}
}

// handleRemoteUpdate records the authoritative server copy as the save
// baseline. A session with no unsaved edits adopts the remote copy as its
// working record; one mid-edit keeps local edits until the next save.
func (s *Session) handleRemoteUpdate(msg models.UpdateMessage) {
	s.coord.SetLastSaved(msg.Record)

	s.mu.Lock()
	if !s.closed && s.coord.Status() == models.SaveStatusSaved {
		s.record = msg.Record.Clone()
		s.draft = models.NewDraft(s.kind, s.id, msg.Record)
		if err := s.drafts.Save(s.draft); err != nil {
			s.logger.WithError(err).Warn("Failed to journal draft")
		}
	}
	s.mu.Unlock()

	s.logger.Debug("Record updated by another client")
	s.emit(Event{Type: EventRemoteUpdate, Record: msg.Record.Clone(), Timestamp: time.Now()})
}

func (s *Session) markClean(snapshot models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.draft.MarkClean(snapshot)
	if s.detector(s.record, snapshot) {
		// Edits landed while this save was in flight; they are still
		// unsaved, so the journal stays dirty.
		s.draft.Touch(s.record)
	}
	if err := s.drafts.Save(s.draft); err != nil {
		s.logger.WithError(err).Warn("Failed to journal draft")
	}
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventsClosed {
		return
	}

	select {
	case s.eventCh <- ev:
	default:
		s.logger.Debug("Session event channel full, dropping event")
	}
}
