package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// JSONStore implements file-based draft storage. Drafts live under
// baseDir/<kind>/<record-id>.json.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	// Locking
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// NewJSONStore creates a JSON-based draft store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create drafts directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_draft_store"),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Load reads a draft from its JSON file.
func (s *JSONStore) Load(key string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.draftPath(key)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]any{
		"key":  key,
		"path": path,
	}).Debug("Loading draft")

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrDraftNotFound
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft file: %w", err)
	}

	var wrapper StoredDraft
	if err := json.Unmarshal(data, &wrapper); err != nil {
		// Try backup file
		if draft, err := s.loadBackup(path); err == nil {
			s.logger.Warn("Loaded draft from backup due to corruption")
			return draft, nil
		}
		return nil, ErrDraftCorrupt
	}

	// Verify checksum if present
	if wrapper.Checksum != "" {
		verification := StoredDraft{
			Draft:         wrapper.Draft,
			SchemaVersion: wrapper.SchemaVersion,
			SavedAt:       wrapper.SavedAt,
		}
		verifyData, _ := json.Marshal(verification)
		hash := sha256.Sum256(verifyData)
		calculated := hex.EncodeToString(hash[:])

		if calculated != wrapper.Checksum {
			s.logger.WithFields(map[string]any{
				"expected": wrapper.Checksum,
				"actual":   calculated,
			}).Error("Draft checksum mismatch")

			if draft, err := s.loadBackup(path); err == nil {
				return draft, nil
			}
			return nil, ErrDraftCorrupt
		}
	}

	if wrapper.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", wrapper.SchemaVersion).Warn("Draft schema version mismatch")
	}

	return wrapper.Draft, nil
}

// Save writes a draft to its JSON file.
func (s *JSONStore) Save(draft *models.Draft) error {
	if err := draft.Validate(); err != nil {
		return fmt.Errorf("invalid draft: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.draftPath(draft.Key)
	if err != nil {
		return err
	}

	s.logger.WithFields(map[string]any{
		"key":   draft.Key,
		"dirty": draft.Dirty,
	}).Debug("Saving draft")

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create draft directory: %w", err)
	}

	// Create wrapper with metadata
	wrapper := StoredDraft{
		Draft:         draft,
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       time.Now(),
	}

	// Calculate checksum (without checksum field)
	checksumData, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("marshal draft for checksum: %w", err)
	}

	hash := sha256.Sum256(checksumData)
	wrapper.Checksum = hex.EncodeToString(hash[:])

	// Marshal final version with checksum
	jsonData, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal draft with checksum: %w", err)
	}

	// Create backup of existing file
	if _, err := os.Stat(path); err == nil {
		backupPath := path + ".backup"
		if err := s.copyFile(path, backupPath); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	// Write atomically
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	// Sync to disk
	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	// Rename atomically
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename draft file: %w", err)
	}

	return nil
}

// Delete removes the draft for a key.
func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.draftPath(key)
	if err != nil {
		return err
	}

	s.logger.WithField("key", key).Info("Deleting draft")

	_ = os.Remove(path)
	_ = os.Remove(path + ".backup")
	// Prune the kind directory if this was the last draft in it
	_ = os.Remove(filepath.Dir(path))

	return nil
}

// List returns all draft keys.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, strings.TrimSuffix(filepath.ToSlash(rel), ".json"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk drafts directory: %w", err)
	}

	return keys, nil
}

// Lock acquires a lock for a draft key.
func (s *JSONStore) Lock(key string) (UnlockFunc, error) {
	s.mu.Lock()
	lock, exists := s.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	// Try to acquire lock with timeout
	done := make(chan struct{})
	go func() {
		lock.Lock()
		close(done)
	}()

	select {
	case <-done:
		return func() { lock.Unlock() }, nil
	case <-time.After(5 * time.Second):
		return nil, ErrDraftLocked
	}
}

// Migrate transfers all drafts to another store.
func (s *JSONStore) Migrate(target Store) error {
	return migrateDrafts(s, target, s.logger)
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

func (s *JSONStore) draftPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid draft key %q", key)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(key)+".json"), nil
}

func (s *JSONStore) loadBackup(path string) (*models.Draft, error) {
	data, err := os.ReadFile(path + ".backup")
	if err != nil {
		return nil, err
	}

	var wrapper StoredDraft
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}

	return wrapper.Draft, nil
}

func (s *JSONStore) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// migrateDrafts copies every draft from src into dst.
func migrateDrafts(src, dst Store, logger *events.Logger) error {
	keys, err := src.List()
	if err != nil {
		return fmt.Errorf("list drafts: %w", err)
	}

	logger.WithField("count", len(keys)).Info("Migrating drafts")

	for _, key := range keys {
		draft, err := src.Load(key)
		if err != nil {
			logger.WithError(err).WithField("key", key).Error("Failed to load draft")
			continue
		}

		if err := dst.Save(draft); err != nil {
			return fmt.Errorf("save draft %s: %w", key, err)
		}

		logger.WithField("key", key).Debug("Migrated draft")
	}

	return nil
}
