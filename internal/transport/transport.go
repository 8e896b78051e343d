package transport

import (
	"context"
	"fmt"

	"github.com/daybookhq/scribe/internal/config"
	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
)

// Transport combines HTTP and realtime update functionality.
type Transport interface {
	// HTTP methods
	GetJSON(ctx context.Context, path string) (map[string]any, error)
	PostJSON(ctx context.Context, path string, payload any) (map[string]any, error)
	PatchJSON(ctx context.Context, path string, payload any) (map[string]any, error)
	PutJSON(ctx context.Context, path string, payload any) (map[string]any, error)

	// Realtime updates
	StreamUpdates(ctx context.Context, sub models.SubscribeMessage) (<-chan models.UpdateMessage, error)

	// Authentication
	SetToken(token string)
	GetToken() string

	// Lifecycle
	Close() error
}

// DefaultTransport implements the Transport interface.
type DefaultTransport struct {
	httpClient *HTTPClient
	wsClient   *WSClient
	updatesCfg *config.UpdatesConfig
	logger     *events.Logger
}

// NewTransport creates a transport instance.
func NewTransport(cfg *config.Config, logger *events.Logger) Transport {
	return &DefaultTransport{
		httpClient: NewHTTPClient(&cfg.API, &cfg.Dev, logger),
		updatesCfg: &cfg.Updates,
		logger:     logger,
	}
}

// GetJSON forwards to HTTP client.
func (t *DefaultTransport) GetJSON(ctx context.Context, path string) (map[string]any, error) {
	return t.httpClient.GetJSON(ctx, path)
}

// PostJSON forwards to HTTP client.
func (t *DefaultTransport) PostJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	return t.httpClient.PostJSON(ctx, path, payload)
}

// PatchJSON forwards to HTTP client.
func (t *DefaultTransport) PatchJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	return t.httpClient.PatchJSON(ctx, path, payload)
}

// PutJSON forwards to HTTP client.
func (t *DefaultTransport) PutJSON(ctx context.Context, path string, payload any) (map[string]any, error) {
	return t.httpClient.PutJSON(ctx, path, payload)
}

// StreamUpdates opens the realtime update stream.
func (t *DefaultTransport) StreamUpdates(ctx context.Context, sub models.SubscribeMessage) (<-chan models.UpdateMessage, error) {
	// One stream per transport; a new call replaces the old connection
	if t.wsClient != nil {
		_ = t.wsClient.Close()
	}
	t.wsClient = NewWSClient(t.httpClient.baseURL, t.httpClient.token, t.updatesCfg, t.logger)

	if err := t.wsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect update stream: %w", err)
	}

	if err := t.wsClient.Subscribe(sub); err != nil {
		t.wsClient.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	// Monitor errors in background
	go func() {
		for err := range t.wsClient.Errors() {
			t.logger.WithError(err).Error("Update stream error")
		}
	}()

	return t.wsClient.Messages(), nil
}

// SetToken sets the auth token.
func (t *DefaultTransport) SetToken(token string) {
	t.httpClient.SetToken(token)
}

// GetToken returns the current auth token.
func (t *DefaultTransport) GetToken() string {
	return t.httpClient.GetToken()
}

// Close closes all connections.
func (t *DefaultTransport) Close() error {
	if t.wsClient != nil {
		return t.wsClient.Close()
	}
	return nil
}
