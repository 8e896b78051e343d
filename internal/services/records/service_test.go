package records_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/services/records"
	"github.com/daybookhq/scribe/internal/transport"
	"github.com/daybookhq/scribe/test/testutil"
)

func TestRecordsGet(t *testing.T) {
	logger := testutil.NewTestLogger()

	t.Run("returns the record", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		mockTransport.AddResponse("GET", "/api/v1/notes/note-1", testutil.SampleNote("note-1"))

		record, err := service.Get(context.Background(), models.KindNote, "note-1")
		require.NoError(t, err)
		assert.Equal(t, "note-1", record.StringField("id"))
		assert.Equal(t, "Meeting notes", record.StringField("title"))
	})

	t.Run("maps 404 to not found", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		mockTransport.AddError("GET", "/api/v1/tasks/gone", &models.APIError{
			StatusCode: 404,
			Code:       "not_found",
			Message:    "record not found",
		})

		_, err := service.Get(context.Background(), models.KindTask, "gone")
		assert.ErrorIs(t, err, models.ErrRecordNotFound)
	})

	t.Run("maps 401 to not authenticated", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		mockTransport.AddError("GET", "/api/v1/notes/note-1", &models.APIError{
			StatusCode: 401,
			Code:       "unauthorized",
			Message:    "token expired",
		})

		_, err := service.Get(context.Background(), models.KindNote, "note-1")
		assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		_, err := service.Get(context.Background(), models.RecordKind("calendar"), "x")
		assert.ErrorIs(t, err, models.ErrInvalidKind)
		assert.Empty(t, mockTransport.Requests, "invalid kind must not reach the API")
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		_, err := service.Get(context.Background(), models.KindNote, "")
		assert.Error(t, err)

		_, err = service.Get(context.Background(), models.KindNote, "../../etc")
		assert.Error(t, err)
		assert.Empty(t, mockTransport.Requests)
	})
}

func TestRecordsCreate(t *testing.T) {
	logger := testutil.NewTestLogger()

	t.Run("returns the server copy", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		mockTransport.AddResponse("POST", "/api/v1/tasks", models.Record{
			"id":         "task-42",
			"title":      "New task",
			"updated_at": "2026-08-20T10:00:00Z",
		})

		record, err := service.Create(context.Background(), models.KindTask, models.Record{
			"title": "New task",
		})
		require.NoError(t, err)
		assert.Equal(t, "task-42", record.StringField("id"))

		calls := mockTransport.CallsTo("POST", "/api/v1/tasks")
		require.Len(t, calls, 1)
	})

	t.Run("rejects a response without id", func(t *testing.T) {
		mockTransport := transport.NewMockTransport()
		service := records.NewService(mockTransport, logger)

		mockTransport.AddResponse("POST", "/api/v1/notes", models.Record{"title": "no id"})

		_, err := service.Create(context.Background(), models.KindNote, models.Record{"title": "no id"})
		assert.ErrorContains(t, err, "missing id")
	})
}

func TestRecordsPatch(t *testing.T) {
	logger := testutil.NewTestLogger()
	mockTransport := transport.NewMockTransport()
	service := records.NewService(mockTransport, logger)

	mockTransport.AddResponse("PATCH", "/api/v1/notes/note-1", models.Record{
		"id":         "note-1",
		"title":      "Renamed",
		"updated_at": "2026-08-20T11:00:00Z",
	})

	record, err := service.Patch(context.Background(), models.KindNote, "note-1", models.Record{
		"title": "Renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", record.StringField("title"))

	calls := mockTransport.CallsTo("PATCH", "/api/v1/notes/note-1")
	require.Len(t, calls, 1)
	payload, ok := calls[0].Payload.(models.Record)
	require.True(t, ok)
	assert.Equal(t, "Renamed", payload.StringField("title"))
}

func TestRecordsPersistFunc(t *testing.T) {
	logger := testutil.NewTestLogger()
	mockTransport := transport.NewMockTransport()
	service := records.NewService(mockTransport, logger)

	mockTransport.AddResponse("PATCH", "/api/v1/notes/note-1", models.Record{
		"id":         "note-1",
		"title":      "Autosaved",
		"content":    "body",
		"updated_at": "2026-08-20T12:00:00Z",
	})

	persist := service.PersistFunc(models.KindNote, "note-1")

	snapshot := models.Record{
		"id":         "note-1",
		"title":      "Autosaved",
		"content":    "body",
		"updated_at": "2026-08-19T00:00:00Z",
		"owner":      "someone-else",
	}

	result, err := persist(context.Background(), snapshot)
	require.NoError(t, err)
	assert.Equal(t, "Autosaved", result.StringField("title"))

	calls := mockTransport.CallsTo("PATCH", "/api/v1/notes/note-1")
	require.Len(t, calls, 1)

	payload, ok := calls[0].Payload.(models.Record)
	require.True(t, ok)
	assert.Equal(t, "Autosaved", payload.StringField("title"))
	assert.Equal(t, "body", payload.StringField("content"))
	assert.NotContains(t, payload, "id", "server-managed fields stay local")
	assert.NotContains(t, payload, "updated_at")
	assert.NotContains(t, payload, "owner")
}

func TestRecordsPersistFuncPropagatesFailure(t *testing.T) {
	logger := testutil.NewTestLogger()
	mockTransport := transport.NewMockTransport()
	service := records.NewService(mockTransport, logger)

	mockTransport.AddError("PATCH", "/api/v1/notes/note-1", errors.New("network down"))

	persist := service.PersistFunc(models.KindNote, "note-1")
	_, err := persist(context.Background(), models.Record{"title": "x"})
	assert.Error(t, err)
}
