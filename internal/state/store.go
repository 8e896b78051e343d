package state

import (
	"errors"
	"time"

	"github.com/daybookhq/scribe/internal/models"
)

// Store manages draft journal persistence.
type Store interface {
	// Load retrieves the draft for a key.
	Load(key string) (*models.Draft, error)

	// Save persists a draft.
	Save(draft *models.Draft) error

	// Delete removes the draft for a key.
	Delete(key string) error

	// List returns all known draft keys.
	List() ([]string, error)

	// Lock acquires an exclusive lock for a draft key.
	Lock(key string) (UnlockFunc, error)

	// Migrate transfers drafts between stores.
	Migrate(target Store) error

	// Close releases resources.
	Close() error
}

// UnlockFunc releases a draft lock.
type UnlockFunc func()

// Errors
var (
	ErrDraftNotFound = errors.New("draft not found")
	ErrDraftLocked   = errors.New("draft is locked")
	ErrDraftCorrupt  = errors.New("draft file is corrupt")
)

// StoredDraft extends the model with store metadata.
type StoredDraft struct {
	*models.Draft

	// Store metadata
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1
