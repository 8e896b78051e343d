package prefs

import (
	"context"
	"fmt"
	"sync"

	"github.com/daybookhq/scribe/internal/autosave"
	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/transport"
)

const preferencesPath = "/user/preferences"

// Service reconciles preferences between the local file and the server and
// pushes local edits through its own auto-save coordinator.
type Service struct {
	transport transport.Transport
	local     *LocalStore
	coord     *autosave.Coordinator
	logger    *events.Logger

	mu    sync.Mutex
	prefs *models.Preferences
}

// NewService creates a preference service. The in-memory copy starts from
// the local file so reads work before any server round trip.
func NewService(transport transport.Transport, local *LocalStore, cfg *config.AutosaveConfig, logger *events.Logger) *Service {
	logger = logger.WithField("service", "prefs")

	prefs, err := local.Load()
	if err != nil {
		logger.WithError(err).Warn("Local preferences unreadable, using defaults")
		prefs = models.DefaultPreferences()
	}

	s := &Service{
		transport: transport,
		local:     local,
		logger:    logger,
		prefs:     prefs,
	}

	s.coord = autosave.New(s.push, &autosave.Config{
		Identity:         "preferences",
		Active:           true,
		DebounceInterval: cfg.DebounceInterval,
		RetryInterval:    cfg.RetryInterval,
		// Change detection ignores updated_at so reconcile timestamps
		// cannot schedule pushes on their own.
		Detector: autosave.FieldDetector(models.PreferenceFields...),
	}, logger)

	s.coord.ResetSaveState(prefs.Record())

	// The coordinator logs every transition; nobody renders preference
	// save events live.
	go func() {
		for range s.coord.Events() {
		}
	}()

	return s
}

// push is the coordinator persist function.
func (s *Service) push(ctx context.Context, record models.Record) (models.Record, error) {
	resp, err := s.transport.PutJSON(ctx, preferencesPath, record)
	if err != nil {
		return nil, fmt.Errorf("push preferences: %w", err)
	}
	return models.Record(resp), nil
}

// All returns a copy of the current preferences.
func (s *Service) All() *models.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *s.prefs
	return &copied
}

// Get returns one preference in string form.
func (s *Service) Get(field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs.Get(field)
}

// Set assigns a preference, writes the local file, and schedules a push.
func (s *Service) Set(field, value string) error {
	s.mu.Lock()

	// Set mutates before validating, so work on a copy to keep the
	// current preferences intact when the value is rejected.
	updated := *s.prefs
	if err := updated.Set(field, value); err != nil {
		s.mu.Unlock()
		return err
	}
	s.prefs = &updated

	if err := s.local.Save(s.prefs); err != nil {
		s.logger.WithError(err).Warn("Failed to write local preferences")
	}

	record := s.prefs.Record()
	s.mu.Unlock()

	s.logger.WithFields(map[string]any{
		"field": field,
		"value": value,
	}).Info("Preference changed")

	s.coord.Observe(record)
	return nil
}

// Load fetches the server copy and reconciles. A newer local copy schedules
// a debounced push; otherwise the server copy is adopted.
func (s *Service) Load(ctx context.Context) error {
	return s.reconcile(ctx)
}

// Sync forces a reconcile and pushes a newer local copy immediately.
func (s *Service) Sync(ctx context.Context) error {
	if err := s.reconcile(ctx); err != nil {
		return err
	}

	if s.coord.Status() != models.SaveStatusSaved {
		if err := s.coord.SaveNow(ctx); err != nil {
			return fmt.Errorf("push preferences: %w", err)
		}
	}

	return nil
}

func (s *Service) reconcile(ctx context.Context) error {
	resp, err := s.transport.GetJSON(ctx, preferencesPath)
	if err != nil {
		return fmt.Errorf("fetch preferences: %w", err)
	}

	server := models.PreferencesFromRecord(models.Record(resp))

	s.mu.Lock()
	local := s.prefs

	// Last write wins; the server wins ties.
	if local.UpdatedAt.After(server.UpdatedAt) {
		record := local.Record()
		s.mu.Unlock()

		s.logger.WithFields(map[string]any{
			"local_updated_at":  local.UpdatedAt,
			"server_updated_at": server.UpdatedAt,
		}).Info("Local preferences newer, scheduling push")

		s.coord.ResetSaveState(server.Record())
		s.coord.Observe(record)
		return nil
	}

	s.prefs = server
	s.mu.Unlock()

	if err := s.local.Save(server); err != nil {
		s.logger.WithError(err).Warn("Failed to write local preferences")
	}

	s.coord.ResetSaveState(server.Record())
	s.logger.Debug("Adopted server preferences")
	return nil
}

// Status returns the push status.
func (s *Service) Status() models.SaveStatus {
	return s.coord.Status()
}

// Close flushes any pending push and stops the coordinator.
func (s *Service) Close(ctx context.Context) error {
	var flushErr error

	switch s.coord.Status() {
	case models.SaveStatusUnsaved, models.SaveStatusError:
		flushErr = s.coord.SaveNow(ctx)
		if flushErr != nil {
			s.logger.WithError(flushErr).Warn("Final preference push failed")
		}
	}

	s.coord.Close()
	return flushErr
}
