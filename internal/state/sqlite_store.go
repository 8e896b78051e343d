package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// SQLiteStore implements SQLite-based draft storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger

	// Locking
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// NewSQLiteStore creates a SQLite draft store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_draft_store"),
		locks:  make(map[string]*sync.Mutex),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS drafts (
        draft_key TEXT PRIMARY KEY,
        kind TEXT NOT NULL,
        record_id TEXT NOT NULL,
        record TEXT NOT NULL,
        baseline TEXT,
        dirty INTEGER NOT NULL DEFAULT 0,
        updated_at TIMESTAMP NOT NULL,
        saved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_drafts_kind ON drafts(kind);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves a draft from the database.
func (s *SQLiteStore) Load(key string) (*models.Draft, error) {
	s.logger.WithField("key", key).Debug("Loading draft from SQLite")

	draft := &models.Draft{Key: key}
	var recordJSON string
	var baselineJSON sql.NullString

	err := s.db.QueryRow(`
        SELECT kind, record_id, record, baseline, dirty, updated_at
        FROM drafts
        WHERE draft_key = ?
    `, key).Scan(&draft.Kind, &draft.RecordID, &recordJSON, &baselineJSON, &draft.Dirty, &draft.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query draft: %w", err)
	}

	if err := json.Unmarshal([]byte(recordJSON), &draft.Record); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Draft record is not valid JSON")
		return nil, ErrDraftCorrupt
	}

	if baselineJSON.Valid && baselineJSON.String != "" {
		if err := json.Unmarshal([]byte(baselineJSON.String), &draft.Baseline); err != nil {
			return nil, ErrDraftCorrupt
		}
	}

	return draft, nil
}

// Save persists a draft to the database.
func (s *SQLiteStore) Save(draft *models.Draft) error {
	if err := draft.Validate(); err != nil {
		return fmt.Errorf("invalid draft: %w", err)
	}

	s.logger.WithFields(map[string]any{
		"key":   draft.Key,
		"dirty": draft.Dirty,
	}).Debug("Saving draft to SQLite")

	recordJSON, err := json.Marshal(draft.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	var baselineJSON []byte
	if draft.Baseline != nil {
		baselineJSON, err = json.Marshal(draft.Baseline)
		if err != nil {
			return fmt.Errorf("marshal baseline: %w", err)
		}
	}

	_, err = s.db.Exec(`
        INSERT INTO drafts (draft_key, kind, record_id, record, baseline, dirty, updated_at, saved_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(draft_key) DO UPDATE SET
            kind = excluded.kind,
            record_id = excluded.record_id,
            record = excluded.record,
            baseline = excluded.baseline,
            dirty = excluded.dirty,
            updated_at = excluded.updated_at,
            saved_at = CURRENT_TIMESTAMP
    `, draft.Key, string(draft.Kind), draft.RecordID, string(recordJSON), nullableString(baselineJSON), draft.Dirty, draft.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}

	return nil
}

// Delete removes the draft for a key.
func (s *SQLiteStore) Delete(key string) error {
	s.logger.WithField("key", key).Info("Deleting draft from SQLite")

	_, err := s.db.Exec("DELETE FROM drafts WHERE draft_key = ?", key)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}

	return nil
}

// List returns all draft keys.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT draft_key FROM drafts ORDER BY draft_key")
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan draft key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Lock acquires a lock for a draft key.
func (s *SQLiteStore) Lock(key string) (UnlockFunc, error) {
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
func (s *SQLiteStore) Migrate(target Store) error {
	return migrateDrafts(s, target, s.logger)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
