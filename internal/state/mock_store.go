package state

import (
	"sync"

	"github.com/daybookhq/scribe/internal/models"
)

// MockStore provides an in-memory draft store for testing.
type MockStore struct {
	mu     sync.RWMutex
	drafts map[string]*models.Draft
}

// NewMockStore creates a mock draft store.
func NewMockStore() *MockStore {
	return &MockStore{
		drafts: make(map[string]*models.Draft),
	}
}

// Load loads the draft for a key.
func (m *MockStore) Load(key string) (*models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if draft, ok := m.drafts[key]; ok {
		// Return a copy to avoid race conditions
		return draft.Clone(), nil
	}

	return nil, ErrDraftNotFound
}

// Save stores a copy of the draft.
func (m *MockStore) Save(draft *models.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.drafts[draft.Key] = draft.Clone()
	return nil
}

// Delete removes the draft for a key.
func (m *MockStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.drafts, key)
	return nil
}

// List returns all stored draft keys.
func (m *MockStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.drafts {
		keys = append(keys, key)
	}
	return keys, nil
}

// Lock acquires an exclusive lock for a draft key (no-op for mock).
func (m *MockStore) Lock(key string) (UnlockFunc, error) {
	return func() {}, nil
}

// Migrate transfers drafts between stores (no-op for mock).
func (m *MockStore) Migrate(target Store) error {
	return nil
}

// Close closes the store (no-op for mock).
func (m *MockStore) Close() error {
	return nil
}

// Helper methods for testing

// SetDraft stores a draft directly (for test setup).
func (m *MockStore) SetDraft(draft *models.Draft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draft.Key] = draft
}

// Clear removes all drafts.
func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = make(map[string]*models.Draft)
}
