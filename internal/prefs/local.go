// Package prefs keeps user preferences in step between a local JSON file
// and the workspace server. The local copy answers reads immediately;
// writes land locally first and a debounced push carries them to the
// server.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// LocalStore persists the local preference copy.
type LocalStore struct {
	path   string
	logger *events.Logger
}

// NewLocalStore creates a local preference store.
func NewLocalStore(path string, logger *events.Logger) *LocalStore {
	return &LocalStore{
		path:   path,
		logger: logger.WithField("component", "prefs"),
	}
}

// Load reads the local preference copy. A missing file yields defaults
// with a zero timestamp, so any server copy wins the first reconcile.
func (s *LocalStore) Load() (*models.Preferences, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}

	var p models.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}

	return &p, nil
}

// Save writes the preference copy atomically.
func (s *LocalStore) Save(p *models.Preferences) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename preferences file: %w", err)
	}

	s.logger.Debug("Preferences written")
	return nil
}
