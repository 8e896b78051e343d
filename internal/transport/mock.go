package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/daybookhq/scribe/internal/models"
)

// MockTransport provides a mock implementation for testing. Responses are
// queued per method+path; the last entry is sticky, so a single AddResponse
// answers every call while AddError followed by AddResponse fails once and
// then succeeds.
type MockTransport struct {
	mu sync.Mutex

	responses map[string][]mockResult

	// Stream configuration
	Updates     []models.UpdateMessage
	StreamError error

	// Request tracking
	Requests       []Request
	StreamRequests []models.SubscribeMessage

	// State
	token    string
	updateCh chan models.UpdateMessage
	closed   bool
}

type mockResult struct {
	response map[string]any
	err      error
}

// Request tracks an HTTP call.
type Request struct {
	Method  string
	Path    string
	Payload any
}

// NewMockTransport creates a mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[string][]mockResult),
	}
}

// AddResponse queues a successful response for a method and path. Non-map
// responses are converted through JSON.
func (m *MockTransport) AddResponse(method, path string, response any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mapResp, ok := response.(map[string]any)
	if !ok {
		data, _ := json.Marshal(response)
		_ = json.Unmarshal(data, &mapResp)
	}

	key := method + " " + path
	m.responses[key] = append(m.responses[key], mockResult{response: mapResp})
}

// AddError queues an error response for a method and path.
func (m *MockTransport) AddError(method, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := method + " " + path
	m.responses[key] = append(m.responses[key], mockResult{err: err})
}

// AddUpdate appends a frame to the mock update stream.
func (m *MockTransport) AddUpdate(msg models.UpdateMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, msg)
}

// PushUpdate delivers a frame on an already-open stream.
func (m *MockTransport) PushUpdate(msg models.UpdateMessage) {
	m.mu.Lock()
	ch := m.updateCh
	closed := m.closed
	m.mu.Unlock()

	if ch != nil && !closed {
		ch <- msg
	}
}

// GetJSON mocks HTTP GET.
func (m *MockTransport) GetJSON(ctx context.Context, path string) (map[string]any, error) {
	return m.call("GET", path, nil)
}

// PostJSON mocks HTTP POST.
func (m *MockTransport) PostJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	return m.call("POST", path, payload)
}

// PatchJSON mocks HTTP PATCH.
func (m *MockTransport) PatchJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	return m.call("PATCH", path, payload)
}

// PutJSON mocks HTTP PUT.
func (m *MockTransport) PutJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	return m.call("PUT", path, payload)
}

func (m *MockTransport) call(method, path string, payload any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, Request{
		Method:  method,
		Path:    path,
		Payload: payload,
	})

	key := method + " " + path
	queue := m.responses[key]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no mock response for %s", key)
	}

	result := queue[0]
	if len(queue) > 1 {
		m.responses[key] = queue[1:]
	}

	if result.err != nil {
		return nil, result.err
	}
	return result.response, nil
}

// StreamUpdates mocks the realtime update stream.
func (m *MockTransport) StreamUpdates(ctx context.Context, sub models.SubscribeMessage) (<-chan models.UpdateMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StreamRequests = append(m.StreamRequests, sub)

	if m.StreamError != nil {
		return nil, m.StreamError
	}

	m.updateCh = make(chan models.UpdateMessage, len(m.Updates)+16)
	for _, msg := range m.Updates {
		m.updateCh <- msg
	}

	return m.updateCh, nil
}

// SetToken mocks token setting.
func (m *MockTransport) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// GetToken returns the current token.
func (m *MockTransport) GetToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Close mocks connection closing.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		if m.updateCh != nil {
			close(m.updateCh)
		}
	}

	return nil
}

// CallsTo returns the tracked requests for a method and path.
func (m *MockTransport) CallsTo(method, path string) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var calls []Request
	for _, req := range m.Requests {
		if req.Method == method && req.Path == path {
			calls = append(calls, req)
		}
	}
	return calls
}
