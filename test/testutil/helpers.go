package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/models"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Time    time.Time              `json:"time"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// TestServer is a fake Daybook backend: auth, record CRUD, preferences,
// analytics ingestion, and the realtime update stream.
type TestServer struct {
	*httptest.Server
	mu           sync.RWMutex
	records      map[string]models.Record
	prefs        models.Record
	authTokens   map[string]string
	loginHandler func(email, password string) (string, error)
	failures     map[string]*failureScript
	requests     map[string]int
	batches      [][]map[string]interface{}
	wsConns      map[*websocket.Conn]bool
	upgrader     websocket.Upgrader
	nextID       int
}

type failureScript struct {
	remaining int
	status    int
}

// NewTestServer creates a new test HTTP server.
func NewTestServer() *TestServer {
	ts := &TestServer{
		records:    make(map[string]models.Record),
		authTokens: make(map[string]string),
		failures:   make(map[string]*failureScript),
		requests:   make(map[string]int),
		wsConns:    make(map[*websocket.Conn]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", ts.handleLogin)
	mux.HandleFunc("/api/v1/", ts.handleRecords)
	mux.HandleFunc("/user/preferences", ts.handlePreferences)
	mux.HandleFunc("/events/batch", ts.handleEvents)
	mux.HandleFunc("/updates/connect", ts.handleUpdates)

	ts.Server = httptest.NewServer(mux)
	return ts
}

// Close shuts the server down along with any open update streams.
func (ts *TestServer) Close() {
	ts.mu.Lock()
	for conn := range ts.wsConns {
		_ = conn.Close()
	}
	ts.wsConns = make(map[*websocket.Conn]bool)
	ts.mu.Unlock()

	ts.Server.Close()
}

// SeedRecord stores a record so GET/PATCH requests can find it.
func (ts *TestServer) SeedRecord(kind models.RecordKind, id string, record models.Record) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.records[recordKey(kind.Collection(), id)] = record.Clone()
}

// Record returns the server-side copy of a record, or nil.
func (ts *TestServer) Record(kind models.RecordKind, id string) models.Record {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if rec, ok := ts.records[recordKey(kind.Collection(), id)]; ok {
		return rec.Clone()
	}
	return nil
}

// SeedToken pre-authorizes a token without going through login.
func (ts *TestServer) SeedToken(token, email string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.authTokens[token] = email
}

// SeedPreferences sets the server-side preference record.
func (ts *TestServer) SeedPreferences(prefs models.Record) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.prefs = prefs.Clone()
}

// Preferences returns the server-side preference record.
func (ts *TestServer) Preferences() models.Record {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.prefs.Clone()
}

// SetLoginHandler sets a custom login handler.
func (ts *TestServer) SetLoginHandler(handler func(email, password string) (string, error)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.loginHandler = handler
}

// ScriptFailure makes the next `times` requests matching "METHOD /path"
// fail with the given status. Use a 4xx status unless the test wants the
// transport's own retry loop to engage.
func (ts *TestServer) ScriptFailure(method, path string, times, status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failures[method+" "+path] = &failureScript{remaining: times, status: status}
}

// RequestCount returns how many requests matched "METHOD /path".
func (ts *TestServer) RequestCount(method, path string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.requests[method+" "+path]
}

// EventBatches returns the analytics batches received so far.
func (ts *TestServer) EventBatches() [][]map[string]interface{} {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	batches := make([][]map[string]interface{}, len(ts.batches))
	copy(batches, ts.batches)
	return batches
}

// EventCount returns the total number of analytics events received.
func (ts *TestServer) EventCount() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	total := 0
	for _, batch := range ts.batches {
		total += len(batch)
	}
	return total
}

// PushUpdate broadcasts an update frame to every connected stream client.
func (ts *TestServer) PushUpdate(msg models.UpdateMessage) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for conn := range ts.wsConns {
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			delete(ts.wsConns, conn)
		}
	}
}

// StreamClients returns the number of connected update stream clients.
func (ts *TestServer) StreamClients() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.wsConns)
}

// track records the request and reports whether a scripted failure consumed
// it. When it returns true the response has already been written.
func (ts *TestServer) track(w http.ResponseWriter, r *http.Request) bool {
	key := r.Method + " " + r.URL.Path

	ts.mu.Lock()
	ts.requests[key]++
	script := ts.failures[key]
	var status int
	if script != nil && script.remaining > 0 {
		script.remaining--
		status = script.status
	}
	ts.mu.Unlock()

	if status != 0 {
		writeAPIError(w, status, "scripted_failure", "scripted test failure")
		return true
	}
	return false
}

func (ts *TestServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if ts.track(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loginReq struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := decodeJSON(r.Body, &loginReq); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	ts.mu.RLock()
	handler := ts.loginHandler
	ts.mu.RUnlock()

	var token string
	var err error

	if handler != nil {
		token, err = handler(loginReq.Email, loginReq.Password)
	} else {
		// Default test authentication
		if loginReq.Email == "test@example.com" && loginReq.Password == "testpassword123" {
			token = "test-token-12345"
		} else {
			err = fmt.Errorf("invalid credentials")
		}
	}

	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
		return
	}

	ts.mu.Lock()
	ts.authTokens[token] = loginReq.Email
	ts.mu.Unlock()

	writeJSON(w, map[string]interface{}{
		"token":      token,
		"expires_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"user": map[string]interface{}{
			"email": loginReq.Email,
		},
	})
}

// handleRecords serves /api/v1/{collection} and /api/v1/{collection}/{id}.
func (ts *TestServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if ts.track(w, r) {
		return
	}
	if !ts.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	parts := strings.SplitN(rest, "/", 2)
	collection := parts[0]
	id := ""
	if len(parts) == 2 {
		id = parts[1]
	}

	switch {
	case r.Method == http.MethodPost && id == "":
		ts.createRecord(w, r, collection)
	case r.Method == http.MethodGet && id != "":
		ts.getRecord(w, collection, id)
	case r.Method == http.MethodPatch && id != "":
		ts.patchRecord(w, r, collection, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) createRecord(w http.ResponseWriter, r *http.Request, collection string) {
	var fields models.Record
	if err := decodeJSON(r.Body, &fields); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid record body")
		return
	}

	ts.mu.Lock()
	ts.nextID++
	id, _ := fields["id"].(string)
	if id == "" {
		id = fmt.Sprintf("srv-%d", ts.nextID)
	}

	record := fields.Clone()
	if record == nil {
		record = models.Record{}
	}
	record["id"] = id
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	ts.records[recordKey(collection, id)] = record
	ts.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, record)
}

func (ts *TestServer) getRecord(w http.ResponseWriter, collection, id string) {
	ts.mu.RLock()
	record, ok := ts.records[recordKey(collection, id)]
	ts.mu.RUnlock()

	if !ok {
		writeAPIError(w, http.StatusNotFound, "not_found", fmt.Sprintf("record %s/%s not found", collection, id))
		return
	}
	writeJSON(w, record)
}

func (ts *TestServer) patchRecord(w http.ResponseWriter, r *http.Request, collection, id string) {
	var fields models.Record
	if err := decodeJSON(r.Body, &fields); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid record body")
		return
	}

	ts.mu.Lock()
	record, ok := ts.records[recordKey(collection, id)]
	if !ok {
		ts.mu.Unlock()
		writeAPIError(w, http.StatusNotFound, "not_found", fmt.Sprintf("record %s/%s not found", collection, id))
		return
	}

	record = record.Merge(fields)
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	ts.records[recordKey(collection, id)] = record
	ts.mu.Unlock()

	writeJSON(w, record)
}

func (ts *TestServer) handlePreferences(w http.ResponseWriter, r *http.Request) {
	if ts.track(w, r) {
		return
	}
	if !ts.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}

	switch r.Method {
	case http.MethodGet:
		ts.mu.RLock()
		prefs := ts.prefs
		ts.mu.RUnlock()
		if prefs == nil {
			prefs = models.Record{}
		}
		writeJSON(w, prefs)

	case http.MethodPut:
		var prefs models.Record
		if err := decodeJSON(r.Body, &prefs); err != nil {
			writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid preference body")
			return
		}
		ts.mu.Lock()
		ts.prefs = prefs.Clone()
		ts.mu.Unlock()
		writeJSON(w, prefs)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if ts.track(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !ts.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}

	var payload struct {
		Events []map[string]interface{} `json:"events"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "invalid batch body")
		return
	}

	ts.mu.Lock()
	ts.batches = append(ts.batches, payload.Events)
	ts.mu.Unlock()

	writeJSON(w, map[string]interface{}{"accepted": len(payload.Events)})
}

func (ts *TestServer) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if !ts.authorized(r) {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		return
	}

	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// First frame must be the subscribe message.
	var sub models.SubscribeMessage
	if err := conn.ReadJSON(&sub); err != nil || sub.Op != models.UpdateOpSubscribe {
		_ = conn.Close()
		return
	}

	ts.mu.Lock()
	ts.wsConns[conn] = true
	ts.mu.Unlock()

	// Drain subsequent frames so control messages (ping/close) are
	// processed; pushes happen from PushUpdate.
	go func() {
		defer func() {
			ts.mu.Lock()
			delete(ts.wsConns, conn)
			ts.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (ts *TestServer) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return false
	}

	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, exists := ts.authTokens[token]
	return exists
}

func recordKey(collection, id string) string {
	return collection + "/" + id
}

// TestHelpers provides common test helper functions.
type TestHelpers struct {
	t       *testing.T
	tempDir string
	cleanup []func()
}

// NewTestHelpers creates test helpers.
func NewTestHelpers(t *testing.T) *TestHelpers {
	tempDir := t.TempDir()
	return &TestHelpers{
		t:       t,
		tempDir: tempDir,
	}
}

// TempDir returns the temporary directory for this test.
func (h *TestHelpers) TempDir() string {
	return h.tempDir
}

// CreateTempFile creates a temporary file with content.
func (h *TestHelpers) CreateTempFile(name, content string) string {
	path := filepath.Join(h.tempDir, name)
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0755)
	require.NoError(h.t, err)

	err = os.WriteFile(path, []byte(content), 0644)
	require.NoError(h.t, err)

	return path
}

// AssertFileExists checks that a file exists.
func (h *TestHelpers) AssertFileExists(path string) {
	_, err := os.Stat(path)
	assert.NoError(h.t, err, "File should exist: %s", path)
}

// AssertFileContent checks file content matches expected.
func (h *TestHelpers) AssertFileContent(path, expectedContent string) {
	content, err := os.ReadFile(path)
	require.NoError(h.t, err)
	assert.Equal(h.t, expectedContent, string(content))
}

// AssertFileNotExists checks that a file does not exist.
func (h *TestHelpers) AssertFileNotExists(path string) {
	_, err := os.Stat(path)
	assert.True(h.t, os.IsNotExist(err), "File should not exist: %s", path)
}

// AddCleanup adds a cleanup function to be called at test end.
func (h *TestHelpers) AddCleanup(fn func()) {
	h.cleanup = append(h.cleanup, fn)
}

// Cleanup runs all cleanup functions.
func (h *TestHelpers) Cleanup() {
	for i := len(h.cleanup) - 1; i >= 0; i-- {
		h.cleanup[i]()
	}
}

// TestTimeout bounds waits for conditions that should happen quickly.
const TestTimeout = 5 * time.Second

// testTimeout provides timeout context for tests.
func testTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return testTimeout(30 * time.Second)
}

// TestConfigWithDir creates a test configuration rooted at dataDir. Autosave
// intervals are short so debounce behavior is observable in test time.
func TestConfigWithDir(dataDir string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:    "https://api.test.daybook.app",
			Timeout:    30 * time.Second,
			MaxRetries: 0,
			UserAgent:  "scribe-test",
		},
		Auth: config.AuthConfig{
			TokenFile: filepath.Join(dataDir, "token.json"),
		},
		Storage: config.StorageConfig{
			DataDir:      dataDir,
			DraftsDir:    filepath.Join(dataDir, "drafts"),
			WorkDir:      filepath.Join(dataDir, "work"),
			PrefsFile:    filepath.Join(dataDir, "preferences.json"),
			Backend:      config.BackendJSON,
			DatabaseFile: filepath.Join(dataDir, "drafts.db"),
		},
		Autosave: config.AutosaveConfig{
			DebounceInterval: 50 * time.Millisecond,
			RetryInterval:    100 * time.Millisecond,
			FlushTimeout:     5 * time.Second,
		},
		Updates: config.UpdatesConfig{
			Enabled:      true,
			PingInterval: time.Second,
			Buffer:       16,
		},
		Analytics: config.AnalyticsConfig{
			Enabled:       true,
			BatchSize:     5,
			FlushInterval: 100 * time.Millisecond,
			QueueSize:     32,
			MaxElapsed:    2 * time.Second,
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "json",
			Color:  false,
		},
	}
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// LogOutput captures log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	// Parse log entry from JSON
	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// Entries returns captured log entries.
func (lo *LogOutput) Entries() []LogEntry {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	entries := make([]LogEntry, len(lo.entries))
	copy(entries, lo.entries)
	return entries
}

// HasLevel checks if any log entry has the specified level.
func (lo *LogOutput) HasLevel(level string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if entry.Level == level {
			return true
		}
	}
	return false
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

// Clear clears all captured entries.
func (lo *LogOutput) Clear() {
	lo.mu.Lock()
	defer lo.mu.Unlock()
	lo.entries = nil
}

// utility functions
func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
