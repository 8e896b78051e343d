// Package editor runs interactive edit sessions. A session binds one record
// to an auto-save coordinator, the records service, the draft journal, and
// the realtime update stream, and reports everything the CLI needs to render
// on a single event channel.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/daybookhq/scribe/internal/autosave"
	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/state"
	"github.com/daybookhq/scribe/internal/transport"
)

// Records is the slice of the records service a session needs.
type Records interface {
	Get(ctx context.Context, kind models.RecordKind, id string) (models.Record, error)
	PersistFunc(kind models.RecordKind, id string) autosave.PersistFunc
}

// Service opens edit sessions.
type Service struct {
	records   Records
	drafts    state.Store
	transport transport.Transport
	cfg       *config.Config
	logger    *events.Logger
}

// NewService creates an editor service.
func NewService(records Records, drafts state.Store, transport transport.Transport, cfg *config.Config, logger *events.Logger) *Service {
	return &Service{
		records:   records,
		drafts:    drafts,
		transport: transport,
		cfg:       cfg,
		logger:    logger.WithField("service", "editor"),
	}
}

// Open starts an edit session for a record. With resume, a dirty draft from
// a previous session becomes the working copy and its unsaved edits are
// pushed by the first auto-save; otherwise the server copy is loaded fresh
// and any stale draft is discarded.
func (s *Service) Open(ctx context.Context, kind models.RecordKind, id string, resume bool) (*Session, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("record id required")
	}

	// The record ID travels on the context so transport logs for the
	// initial fetch can be tied back to this session.
	ctx = events.WithRecordID(ctx, id)

	logger := s.logger.WithRecord(string(kind), id)
	key := models.DraftKey(kind, id)

	unlock, err := s.drafts.Lock(key)
	if err != nil {
		return nil, fmt.Errorf("lock draft %s: %w", key, err)
	}

	draft, working, err := s.prepareDraft(ctx, kind, id, key, resume, logger)
	if err != nil {
		unlock()
		return nil, err
	}

	detector := autosave.FieldDetector(kind.EditableFields()...)
	coord := autosave.New(s.records.PersistFunc(kind, id), &autosave.Config{
		Identity:         id,
		Active:           true,
		DebounceInterval: s.cfg.Autosave.DebounceInterval,
		RetryInterval:    s.cfg.Autosave.RetryInterval,
		Detector:         detector,
	}, s.logger)

	coord.ResetSaveState(draft.Baseline)

	sess := &Session{
		kind:         kind,
		id:           id,
		key:          key,
		coord:        coord,
		drafts:       s.drafts,
		detector:     detector,
		logger:       logger,
		record:       working,
		draft:        draft,
		eventCh:      make(chan Event, eventBuffer),
		unlock:       unlock,
		flushTimeout: s.cfg.Autosave.FlushTimeout,
	}

	sess.wg.Add(1)
	go sess.forwardSaveEvents()

	if s.cfg.Updates.Enabled {
		s.startUpdateStream(sess)
	}

	if draft.Dirty {
		// Resumed edits count as unsaved work; the coordinator schedules
		// their push immediately.
		coord.Observe(working)
	}

	logger.WithField("resumed", draft.Dirty).Info("Edit session opened")
	return sess, nil
}

// prepareDraft decides what the session starts from: a resumed dirty draft
// or a freshly fetched record.
func (s *Service) prepareDraft(ctx context.Context, kind models.RecordKind, id, key string, resume bool, logger *events.Logger) (*models.Draft, models.Record, error) {
	existing, err := s.drafts.Load(key)
	if err != nil && !errors.Is(err, state.ErrDraftNotFound) {
		logger.WithError(err).Warn("Draft journal unreadable, starting fresh")
	}

	if resume && existing != nil && existing.Dirty {
		logger.WithField("draft_age", existing.UpdatedAt.String()).Info("Resuming dirty draft")
		return existing, existing.Record.Clone(), nil
	}

	if existing != nil && existing.Dirty && !resume {
		logger.Warn("Discarding dirty draft, loading server copy")
	}

	record, err := s.records.Get(ctx, kind, id)
	if err != nil {
		return nil, nil, err
	}

	draft := models.NewDraft(kind, id, record)
	if err := s.drafts.Save(draft); err != nil {
		logger.WithError(err).Warn("Failed to journal draft")
	}

	return draft, record.Clone(), nil
}

// startUpdateStream subscribes the session to realtime updates. Stream
// failures degrade the session to HTTP-only rather than failing Open.
func (s *Service) startUpdateStream(sess *Session) {
	streamCtx, cancel := context.WithCancel(context.Background())
	sess.streamCancel = cancel

	device, err := os.Hostname()
	if err != nil || device == "" {
		device = "scribe"
	}

	updates, err := s.transport.StreamUpdates(streamCtx, models.SubscribeMessage{
		Kinds:  []string{string(sess.kind)},
		Device: device,
	})
	if err != nil {
		sess.logger.WithError(err).Warn("Update stream unavailable, continuing without realtime updates")
		cancel()
		sess.streamCancel = nil
		return
	}

	sess.wg.Add(1)
	go sess.consumeUpdates(updates)
}
