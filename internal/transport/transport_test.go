package transport_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/transport"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func TestHTTPClientRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"saved": true}`))
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		UserAgent:  "test",
	}

	client := transport.NewHTTPClient(cfg, nil, testLogger())

	ctx := context.Background()
	resp, err := client.PatchJSON(ctx, "/v1/notes/note-1", map[string]string{"title": "Groceries"})

	require.NoError(t, err)
	assert.Equal(t, true, resp["saved"])
	assert.Equal(t, 2, attempts)
}

func TestHTTPClientHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/notes/note-123", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "scribe-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		// GET carries no body
		assert.Empty(t, r.Header.Get("Content-Type"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": "note-123", "title": "Groceries"}`))
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		UserAgent:  "scribe-test",
	}

	client := transport.NewHTTPClient(cfg, nil, testLogger())
	client.SetToken("test-token")

	ctx := events.WithRequestID(context.Background(), "req-42")
	resp, err := client.GetJSON(ctx, "/v1/notes/note-123")

	require.NoError(t, err)
	assert.Equal(t, "note-123", resp["id"])
	assert.Equal(t, "Groceries", resp["title"])
}

func TestHTTPClientEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		UserAgent:  "test",
	}

	client := transport.NewHTTPClient(cfg, nil, testLogger())

	resp, err := client.PutJSON(context.Background(), "/v1/preferences", map[string]any{"theme": "dark"})

	require.NoError(t, err)
	assert.Empty(t, resp)
}

func TestWebSocketConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/updates/connect", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Read subscribe frame
		var sub models.SubscribeMessage
		err = conn.ReadJSON(&sub)
		require.NoError(t, err)
		assert.Equal(t, models.UpdateOpSubscribe, sub.Op)
		assert.Equal(t, "test-token", sub.Token)
		assert.Equal(t, []string{"notes"}, sub.Kinds)

		// Pong frames are consumed by the client, not surfaced
		err = conn.WriteJSON(models.UpdateMessage{Op: models.UpdateOpPong})
		require.NoError(t, err)

		err = conn.WriteJSON(models.UpdateMessage{
			Op:       models.UpdateOpRecordUpdated,
			Kind:     models.KindNote,
			RecordID: "note-1",
			Record:   models.Record{"id": "note-1", "title": "Groceries"},
		})
		require.NoError(t, err)

		err = conn.WriteJSON(models.UpdateMessage{
			Op:       models.UpdateOpRecordDeleted,
			Kind:     models.KindNote,
			RecordID: "note-2",
		})
		require.NoError(t, err)

		// Hold the connection open until the client disconnects
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := transport.NewWSClient(server.URL, "test-token", nil, testLogger())

	ctx := context.Background()
	err := client.Connect(ctx)
	require.NoError(t, err)
	defer client.Close()

	err = client.Subscribe(models.SubscribeMessage{
		Token: "test-token",
		Kinds: []string{"notes"},
	})
	require.NoError(t, err)

	messages := []models.UpdateMessage{}
	timeout := time.After(2 * time.Second)
	for len(messages) < 2 {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				t.Fatal("message channel closed early")
			}
			messages = append(messages, msg)
		case <-timeout:
			t.Fatal("timeout waiting for messages")
		}
	}

	assert.Equal(t, models.UpdateOpRecordUpdated, messages[0].Op)
	assert.Equal(t, "note-1", messages[0].RecordID)
	assert.Equal(t, "Groceries", messages[0].Record["title"])
	assert.Equal(t, models.UpdateOpRecordDeleted, messages[1].Op)
	assert.Equal(t, "note-2", messages[1].RecordID)
}

func TestTransportInterface(t *testing.T) {
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/auth/login" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"token": "test-token", "user_id": "user-1"}`))
		case r.URL.Path == "/v1/notes/note-1" && r.Method == http.MethodGet:
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id": "note-1", "title": "Groceries"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code": "RECORD_NOT_FOUND", "message": "no such record"}`))
		}
	}))
	defer httpServer.Close()

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = httpServer.URL
	cfg.API.MaxRetries = 0

	tr := transport.NewTransport(cfg, testLogger())
	defer tr.Close()

	ctx := context.Background()

	resp, err := tr.PostJSON(ctx, "/v1/auth/login", map[string]string{
		"email":    "test@example.com",
		"password": "password",
	})
	require.NoError(t, err)
	assert.Equal(t, "test-token", resp["token"])

	tr.SetToken("test-token")
	assert.Equal(t, "test-token", tr.GetToken())

	record, err := tr.GetJSON(ctx, "/v1/notes/note-1")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", record["title"])
}

func TestMockTransport(t *testing.T) {
	mock := transport.NewMockTransport()

	mock.AddResponse("POST", "/v1/auth/login", map[string]any{
		"token": "test-token",
	})

	// Queued results: first call fails, later calls succeed
	mock.AddError("PATCH", "/v1/notes/note-1", errors.New("network down"))
	mock.AddResponse("PATCH", "/v1/notes/note-1", map[string]any{"saved": true})

	mock.AddUpdate(models.UpdateMessage{
		Op:       models.UpdateOpRecordUpdated,
		Kind:     models.KindNote,
		RecordID: "note-1",
	})

	ctx := context.Background()

	resp, err := mock.PostJSON(ctx, "/v1/auth/login", map[string]string{
		"email": "test@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "test-token", resp["token"])

	_, err = mock.PatchJSON(ctx, "/v1/notes/note-1", map[string]string{"title": "a"})
	require.Error(t, err)

	resp, err = mock.PatchJSON(ctx, "/v1/notes/note-1", map[string]string{"title": "b"})
	require.NoError(t, err)
	assert.Equal(t, true, resp["saved"])

	// Last queued result is sticky
	resp, err = mock.PatchJSON(ctx, "/v1/notes/note-1", map[string]string{"title": "c"})
	require.NoError(t, err)
	assert.Equal(t, true, resp["saved"])

	updates, err := mock.StreamUpdates(ctx, models.SubscribeMessage{Token: "test-token"})
	require.NoError(t, err)

	select {
	case msg := <-updates:
		assert.Equal(t, "note-1", msg.RecordID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for queued update")
	}

	mock.PushUpdate(models.UpdateMessage{
		Op:       models.UpdateOpRecordDeleted,
		Kind:     models.KindNote,
		RecordID: "note-2",
	})

	select {
	case msg := <-updates:
		assert.Equal(t, models.UpdateOpRecordDeleted, msg.Op)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for pushed update")
	}

	assert.Len(t, mock.CallsTo("PATCH", "/v1/notes/note-1"), 3)
	assert.Len(t, mock.Requests, 4)
	require.Len(t, mock.StreamRequests, 1)
	assert.Equal(t, "test-token", mock.StreamRequests[0].Token)

	require.NoError(t, mock.Close())
}

func TestHTTPClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{
			"code": "RECORD_NOT_FOUND",
			"message": "no note with id note-404"
		}`))
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		UserAgent:  "test",
	}

	client := transport.NewHTTPClient(cfg, nil, testLogger())

	_, err := client.GetJSON(context.Background(), "/v1/notes/note-404")

	require.Error(t, err)

	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, models.ErrCodeRecordNotFound, apiErr.Code)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPClientPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`title must not be empty`))
	}))
	defer server.Close()

	cfg := &config.APIConfig{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		UserAgent:  "test",
	}

	client := transport.NewHTTPClient(cfg, nil, testLogger())

	_, err := client.PostJSON(context.Background(), "/v1/notes", map[string]string{"title": ""})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "title must not be empty")

	var apiErr *models.APIError
	assert.False(t, errors.As(err, &apiErr))
}
