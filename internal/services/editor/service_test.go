package editor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/services/editor"
	"github.com/daybookhq/scribe/internal/services/records"
	"github.com/daybookhq/scribe/internal/state"
	"github.com/daybookhq/scribe/internal/transport"
	"github.com/daybookhq/scribe/test/testutil"
)

// editorFixture wires an editor service over a mock transport and an
// in-memory draft store.
type editorFixture struct {
	transport *transport.MockTransport
	drafts    *state.MockStore
	service   *editor.Service
}

func newEditorFixture(t *testing.T) *editorFixture {
	t.Helper()

	logger := testutil.NewTestLogger()
	mockTransport := transport.NewMockTransport()
	drafts := state.NewMockStore()
	cfg := testutil.TestConfigWithDir(t.TempDir())

	recordsService := records.NewService(mockTransport, logger)

	return &editorFixture{
		transport: mockTransport,
		drafts:    drafts,
		service:   editor.NewService(recordsService, drafts, mockTransport, cfg, logger),
	}
}

// collectEvents drains session events into a race-safe slice.
func collectEvents(sess *editor.Session) func() []editor.Event {
	var mu sync.Mutex
	var collected []editor.Event

	go func() {
		for ev := range sess.Events() {
			mu.Lock()
			collected = append(collected, ev)
			mu.Unlock()
		}
	}()

	return func() []editor.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]editor.Event, len(collected))
		copy(out, collected)
		return out
	}
}

func TestEditorOpenFresh(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	assert.Equal(t, models.KindNote, sess.Kind())
	assert.Equal(t, "note-1", sess.ID())
	assert.Equal(t, "Meeting notes", sess.Record().StringField("title"))
	assert.Equal(t, models.SaveStatusSaved, sess.Status())

	// A clean journal entry mirrors the loaded record.
	draft, err := fix.drafts.Load(models.DraftKey(models.KindNote, "note-1"))
	require.NoError(t, err)
	assert.False(t, draft.Dirty)
	assert.Equal(t, "Meeting notes", draft.Record.StringField("title"))

	// The session subscribed to updates for its kind.
	require.Len(t, fix.transport.StreamRequests, 1)
	assert.Equal(t, []string{"note"}, fix.transport.StreamRequests[0].Kinds)
}

func TestEditorOpenValidation(t *testing.T) {
	fix := newEditorFixture(t)

	_, err := fix.service.Open(context.Background(), models.RecordKind("calendar"), "x", false)
	assert.ErrorIs(t, err, models.ErrInvalidKind)

	_, err = fix.service.Open(context.Background(), models.KindNote, "  ", false)
	assert.Error(t, err)
}

func TestEditorOpenRecordMissing(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddError("GET", "/api/v1/notes/gone", &models.APIError{
		StatusCode: 404,
		Code:       "not_found",
		Message:    "record not found",
	})

	_, err := fix.service.Open(context.Background(), models.KindNote, "gone", false)
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestEditorOpenReleasesLockOnError(t *testing.T) {
	logger := testutil.NewTestLogger()
	cfg := testutil.TestConfigWithDir(t.TempDir())
	drafts := state.NewMockStore()

	mockRecords := testutil.NewMockRecords()
	mockRecords.On("Get", mock.Anything, models.KindNote, "note-1").
		Return(nil, errors.New("server unreachable")).Once()
	mockRecords.On("Get", mock.Anything, models.KindNote, "note-1").
		Return(testutil.SampleNote("note-1"), nil).Once()

	service := editor.NewService(mockRecords, drafts, transport.NewMockTransport(), cfg, logger)

	_, err := service.Open(context.Background(), models.KindNote, "note-1", false)
	require.Error(t, err)

	// The failed open must release the draft lock for the next attempt.
	sess, err := service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	testutil.AssertMockExpectations(t, mockRecords)
}

func TestEditorApplyAutosaves(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))
	fix.transport.AddResponse("PATCH", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)

	events := collectEvents(sess)

	sess.Apply(map[string]any{"title": "Renamed"})

	testutil.WaitForCondition(t, func() bool {
		return len(fix.transport.CallsTo("PATCH", "/api/v1/notes/note-1")) == 1
	}, testutil.TestTimeout, "debounced save should reach the API")

	testutil.WaitForCondition(t, func() bool {
		return sess.Status() == models.SaveStatusSaved
	}, testutil.TestTimeout, "save should settle")

	// Only editable fields go on the wire.
	calls := fix.transport.CallsTo("PATCH", "/api/v1/notes/note-1")
	payload, ok := calls[0].Payload.(models.Record)
	require.True(t, ok)
	assert.Equal(t, "Renamed", payload.StringField("title"))
	assert.NotContains(t, payload, "id")
	assert.NotContains(t, payload, "updated_at")

	// The journal entry is clean again after the save.
	testutil.WaitForCondition(t, func() bool {
		draft, err := fix.drafts.Load(models.DraftKey(models.KindNote, "note-1"))
		return err == nil && !draft.Dirty
	}, testutil.TestTimeout, "journal should be marked clean")

	require.NoError(t, sess.Close(context.Background()))

	var statuses []models.SaveStatus
	for _, ev := range events() {
		if ev.Type == editor.EventSaveStatus {
			statuses = append(statuses, ev.Status)
		}
	}
	assert.Equal(t, []models.SaveStatus{
		models.SaveStatusUnsaved,
		models.SaveStatusSaving,
		models.SaveStatusSaved,
	}, statuses)
}

func TestEditorResume(t *testing.T) {
	fix := newEditorFixture(t)

	draft := testutil.SampleDraft(models.KindNote, "note-1")
	fix.drafts.SetDraft(draft)
	fix.transport.AddResponse("PATCH", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", true)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	// The dirty draft is the working copy; no server fetch happened.
	assert.Equal(t, "Unsaved local edits.\n", sess.Record().StringField("content"))
	assert.Empty(t, fix.transport.CallsTo("GET", "/api/v1/notes/note-1"))

	// Resumed edits count as unsaved and are pushed by the first auto-save.
	testutil.WaitForCondition(t, func() bool {
		return len(fix.transport.CallsTo("PATCH", "/api/v1/notes/note-1")) == 1
	}, testutil.TestTimeout, "resumed edits should be saved")

	testutil.WaitForCondition(t, func() bool {
		return sess.Status() == models.SaveStatusSaved
	}, testutil.TestTimeout, "resumed save should settle")
}

func TestEditorResumeWithoutDraft(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/tasks/task-1", testutil.SampleTask("task-1"))

	sess, err := fix.service.Open(context.Background(), models.KindTask, "task-1", true)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	// Nothing to resume; the server copy is loaded instead.
	require.Len(t, fix.transport.CallsTo("GET", "/api/v1/tasks/task-1"), 1)
	assert.Equal(t, models.SaveStatusSaved, sess.Status())
}

func TestEditorDiscardsDraftWithoutResume(t *testing.T) {
	fix := newEditorFixture(t)

	fix.drafts.SetDraft(testutil.SampleDraft(models.KindNote, "note-1"))
	fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	assert.Equal(t, "# Agenda\n\n- Review roadmap\n- Assign owners\n", sess.Record().StringField("content"))

	draft, err := fix.drafts.Load(models.DraftKey(models.KindNote, "note-1"))
	require.NoError(t, err)
	assert.False(t, draft.Dirty, "stale draft should be replaced by a clean entry")
}

func TestEditorRemoteUpdate(t *testing.T) {
	t.Run("clean session adopts the remote copy", func(t *testing.T) {
		fix := newEditorFixture(t)
		fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

		sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
		require.NoError(t, err)
		defer sess.Close(context.Background())

		events := collectEvents(sess)

		remote := testutil.SampleNote("note-1")
		remote["title"] = "Edited elsewhere"
		fix.transport.PushUpdate(testutil.RecordUpdated(models.KindNote, "note-1", remote))

		testutil.WaitForCondition(t, func() bool {
			return sess.Record().StringField("title") == "Edited elsewhere"
		}, testutil.TestTimeout, "clean session should adopt the remote copy")

		testutil.WaitForCondition(t, func() bool {
			for _, ev := range events() {
				if ev.Type == editor.EventRemoteUpdate {
					return ev.Record.StringField("title") == "Edited elsewhere"
				}
			}
			return false
		}, testutil.TestTimeout, "remote update event should surface")

		// Re-observing the adopted copy schedules nothing.
		assert.Equal(t, models.SaveStatusSaved, sess.Status())
	})

	t.Run("dirty session keeps local edits", func(t *testing.T) {
		fix := newEditorFixture(t)
		fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

		sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
		require.NoError(t, err)

		// Leave the edit pending so the session stays unsaved.
		sess.Apply(map[string]any{"title": "Local title"})
		testutil.WaitForCondition(t, func() bool {
			return sess.Status() == models.SaveStatusUnsaved
		}, testutil.TestTimeout, "edit should mark the session unsaved")

		remote := testutil.SampleNote("note-1")
		remote["title"] = "Remote title"
		fix.transport.PushUpdate(testutil.RecordUpdated(models.KindNote, "note-1", remote))

		events := collectEvents(sess)
		testutil.WaitForCondition(t, func() bool {
			for _, ev := range events() {
				if ev.Type == editor.EventRemoteUpdate {
					return true
				}
			}
			return false
		}, testutil.TestTimeout, "remote update event should surface")

		assert.Equal(t, "Local title", sess.Record().StringField("title"))

		// The flush on close pushes the local edit over the remote copy.
		fix.transport.AddResponse("PATCH", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))
		require.NoError(t, sess.Close(context.Background()))
	})

	t.Run("ignores frames for other records", func(t *testing.T) {
		fix := newEditorFixture(t)
		fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

		sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
		require.NoError(t, err)
		defer sess.Close(context.Background())

		other := testutil.SampleNote("note-2")
		other["title"] = "Different record"
		fix.transport.PushUpdate(testutil.RecordUpdated(models.KindNote, "note-2", other))

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, "Meeting notes", sess.Record().StringField("title"))
	})
}

func TestEditorRemoteDelete(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/tasks/task-9", testutil.SampleTask("task-9"))

	sess, err := fix.service.Open(context.Background(), models.KindTask, "task-9", false)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	events := collectEvents(sess)
	fix.transport.PushUpdate(testutil.RecordDeleted(models.KindTask, "task-9"))

	testutil.WaitForCondition(t, func() bool {
		for _, ev := range events() {
			if ev.Type == editor.EventRemoteDelete {
				return true
			}
		}
		return false
	}, testutil.TestTimeout, "remote delete event should surface")
}

func TestEditorCloseFlushesUnsaved(t *testing.T) {
	logger := testutil.NewTestLogger()
	mockTransport := transport.NewMockTransport()
	drafts := state.NewMockStore()
	cfg := testutil.TestConfigWithDir(t.TempDir())
	// Debounce far beyond the test so only the close flush can save.
	cfg.Autosave.DebounceInterval = 5 * time.Second

	service := editor.NewService(records.NewService(mockTransport, logger), drafts, mockTransport, cfg, logger)

	mockTransport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))
	mockTransport.AddResponse("PATCH", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)

	sess.Apply(map[string]any{"title": "Flushed on close"})
	testutil.WaitForCondition(t, func() bool {
		return sess.Status() == models.SaveStatusUnsaved
	}, testutil.TestTimeout, "edit should mark the session unsaved")

	require.NoError(t, sess.Close(context.Background()))

	calls := mockTransport.CallsTo("PATCH", "/api/v1/notes/note-1")
	require.Len(t, calls, 1, "close should flush exactly once")

	// The flushed journal entry is gone.
	_, err = drafts.Load(models.DraftKey(models.KindNote, "note-1"))
	assert.ErrorIs(t, err, state.ErrDraftNotFound)

	// The event channel closes with the session.
	testutil.WaitForCondition(t, func() bool {
		select {
		case _, open := <-sess.Events():
			return !open
		default:
			return false
		}
	}, testutil.TestTimeout, "event channel should close")
}

func TestEditorCloseKeepsFailedDraft(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))
	fix.transport.AddError("PATCH", "/api/v1/notes/note-1", &models.APIError{
		StatusCode: 422,
		Code:       "validation_failed",
		Message:    "title too long",
	})

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)

	sess.Apply(map[string]any{"title": "Never lands"})
	testutil.WaitForCondition(t, func() bool {
		return sess.Status() != models.SaveStatusSaved
	}, testutil.TestTimeout, "edit should leave the saved state")

	err = sess.Close(context.Background())
	require.Error(t, err)

	var saveErr *models.SaveError
	assert.ErrorAs(t, err, &saveErr)

	// The dirty journal entry survives for a later resume.
	draft, loadErr := fix.drafts.Load(models.DraftKey(models.KindNote, "note-1"))
	require.NoError(t, loadErr)
	assert.True(t, draft.Dirty)
	assert.Equal(t, "Never lands", draft.Record.StringField("title"))
}

func TestEditorCloseIdempotent(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)

	require.NoError(t, sess.Close(context.Background()))
	require.NoError(t, sess.Close(context.Background()))
}

func TestEditorStreamEnd(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	sess, err := fix.service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)
	defer sess.Close(context.Background())

	events := collectEvents(sess)

	// Dropping the transport ends the update stream.
	require.NoError(t, fix.transport.Close())

	testutil.WaitForCondition(t, func() bool {
		for _, ev := range events() {
			if ev.Type == editor.EventStreamEnd {
				return true
			}
		}
		return false
	}, testutil.TestTimeout, "stream end should surface as an event")
}

func TestEditorSetContent(t *testing.T) {
	fix := newEditorFixture(t)
	fix.transport.AddResponse("GET", "/api/v1/tasks/task-1", testutil.SampleTask("task-1"))
	fix.transport.AddResponse("PATCH", "/api/v1/tasks/task-1", testutil.SampleTask("task-1"))

	sess, err := fix.service.Open(context.Background(), models.KindTask, "task-1", false)
	require.NoError(t, err)

	// Tasks keep their body in the notes field.
	sess.SetContent("Rewritten body")
	assert.Equal(t, "Rewritten body", sess.Record().StringField("notes"))

	require.NoError(t, sess.Close(context.Background()))
}

func TestEditorSingleSessionPerRecord(t *testing.T) {
	logger := testutil.NewTestLogger()
	mockTransport := transport.NewMockTransport()
	cfg := testutil.TestConfigWithDir(t.TempDir())

	drafts, err := state.NewJSONStore(cfg.Storage.DraftsDir, logger)
	require.NoError(t, err)
	defer drafts.Close()

	service := editor.NewService(records.NewService(mockTransport, logger), drafts, mockTransport, cfg, logger)

	mockTransport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

	first, err := service.Open(context.Background(), models.KindNote, "note-1", false)
	require.NoError(t, err)

	// A second session on the same record waits on the journal lock.
	opened := make(chan *editor.Session, 1)
	go func() {
		sess, err := service.Open(context.Background(), models.KindNote, "note-1", false)
		if err != nil {
			opened <- nil
			return
		}
		opened <- sess
	}()

	select {
	case <-opened:
		t.Fatal("second session opened while the first held the lock")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, first.Close(context.Background()))

	select {
	case second := <-opened:
		require.NotNil(t, second)
		require.NoError(t, second.Close(context.Background()))
	case <-time.After(testutil.TestTimeout):
		t.Fatal("second session never acquired the lock")
	}
}
