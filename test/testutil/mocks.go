package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/daybookhq/scribe/internal/autosave"
	"github.com/daybookhq/scribe/internal/models"
)

// MockRecords mocks the records service surface the editor session consumes.
type MockRecords struct {
	mock.Mock
}

func NewMockRecords() *MockRecords {
	return &MockRecords{}
}

func (m *MockRecords) Get(ctx context.Context, kind models.RecordKind, id string) (models.Record, error) {
	args := m.Called(ctx, kind, id)

	if result := args.Get(0); result != nil {
		return result.(models.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecords) Create(ctx context.Context, kind models.RecordKind, fields models.Record) (models.Record, error) {
	args := m.Called(ctx, kind, fields)

	if result := args.Get(0); result != nil {
		return result.(models.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecords) Patch(ctx context.Context, kind models.RecordKind, id string, fields models.Record) (models.Record, error) {
	args := m.Called(ctx, kind, id, fields)

	if result := args.Get(0); result != nil {
		return result.(models.Record), args.Error(1)
	}
	return nil, args.Error(1)
}

// PersistFunc adapts the mocked Patch into a coordinator persist function.
func (m *MockRecords) PersistFunc(kind models.RecordKind, id string) autosave.PersistFunc {
	return func(ctx context.Context, record models.Record) (models.Record, error) {
		return m.Patch(ctx, kind, id, record)
	}
}

// RecordingPersist captures every snapshot handed to a persist function, in
// order. Safe for concurrent saves.
type RecordingPersist struct {
	mu        sync.Mutex
	snapshots []models.Record
	attempts  int
	failLeft  int
	err       error
}

func NewRecordingPersist() *RecordingPersist {
	return &RecordingPersist{}
}

// SetError makes subsequent persist calls fail with err (nil restores
// success).
func (p *RecordingPersist) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// FailTimes makes the next n persist attempts fail, after which calls
// succeed again.
func (p *RecordingPersist) FailTimes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failLeft = n
}

// Persist is the coordinator-compatible persist function.
func (p *RecordingPersist) Persist(ctx context.Context, record models.Record) (models.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempts++
	if p.failLeft > 0 {
		p.failLeft--
		return nil, fmt.Errorf("simulated persist failure")
	}
	if p.err != nil {
		return nil, p.err
	}
	p.snapshots = append(p.snapshots, record.Clone())
	return record.Clone(), nil
}

// Calls returns how many persists were attempted, failures included.
func (p *RecordingPersist) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Successes returns how many persists succeeded.
func (p *RecordingPersist) Successes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

// Last returns the most recent persisted snapshot, or nil.
func (p *RecordingPersist) Last() models.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1].Clone()
}

// Snapshots returns all persisted snapshots in order.
func (p *RecordingPersist) Snapshots() []models.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Record, len(p.snapshots))
	for i, s := range p.snapshots {
		out[i] = s.Clone()
	}
	return out
}

// AssertMockExpectations verifies all mock expectations.
func AssertMockExpectations(t mock.TestingT, mocks ...interface{}) {
	for _, m := range mocks {
		if mockObj, ok := m.(interface{ AssertExpectations(mock.TestingT) bool }); ok {
			mockObj.AssertExpectations(t)
		}
	}
}
