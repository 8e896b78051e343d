package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/daybookhq/scribe/internal/events"
	"github.com/daybookhq/scribe/internal/models"
	"github.com/daybookhq/scribe/internal/transport"
)

// Service manages the login session against a Daybook workspace. The token
// is cached in memory and persisted to a mode-0600 JSON file so a new
// process can resume without prompting for credentials.
type Service struct {
	transport transport.Transport
	logger    *events.Logger

	token     *models.TokenInfo
	tokenFile string
}

// NewService creates a session service.
func NewService(transport transport.Transport, tokenFile string, logger *events.Logger) *Service {
	return &Service{
		transport: transport,
		tokenFile: tokenFile,
		logger:    logger.WithField("service", "session"),
	}
}

// Login authenticates with email and password.
func (s *Service) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("email and password required")
	}

	s.logger.WithField("email", email).Info("Logging in")

	req := models.AuthRequest{
		Email:    email,
		Password: password,
	}

	resp, err := s.transport.PostJSON(ctx, "/auth/login", req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode login response: %w", err)
	}

	var auth models.AuthResponse
	if err := json.Unmarshal(raw, &auth); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}

	if auth.Token == "" {
		s.logger.WithField("response_keys", getKeys(resp)).Error("Token not found in response")
		return fmt.Errorf("invalid login response: missing token")
	}

	expiresAt := auth.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(24 * time.Hour) // Default expiry
	}

	s.token = &models.TokenInfo{
		Token:     auth.Token,
		ExpiresAt: expiresAt,
		Email:     email,
	}

	s.transport.SetToken(auth.Token)

	if err := s.saveToken(); err != nil {
		s.logger.WithError(err).Warn("Failed to save token")
	}

	s.logger.Info("Login successful")
	return nil
}

// Logout clears the cached token and removes the token file. The server
// holds no session state, so this is purely local.
func (s *Service) Logout() error {
	s.logger.Info("Logging out")

	s.token = nil
	s.transport.SetToken("")

	if s.tokenFile != "" {
		if err := os.Remove(s.tokenFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove token file: %w", err)
		}
	}

	return nil
}

// Token returns the current token if valid.
func (s *Service) Token() (*models.TokenInfo, error) {
	if s.token != nil && !s.token.IsExpired() {
		return s.token, nil
	}

	if err := s.loadToken(); err == nil && s.token != nil && !s.token.IsExpired() {
		return s.token, nil
	}

	return nil, models.ErrNotAuthenticated
}

// EnsureAuthenticated loads a valid token and installs it on the transport.
func (s *Service) EnsureAuthenticated(ctx context.Context) error {
	token, err := s.Token()
	if err != nil {
		return err
	}

	s.transport.SetToken(token.Token)

	if until := time.Until(token.ExpiresAt); until < time.Hour {
		s.logger.WithField("expires_in", until.Round(time.Minute).String()).
			Warn("Token expires soon, log in again to avoid interruption")
	}

	return nil
}

// Token persistence

func (s *Service) saveToken() error {
	if s.tokenFile == "" || s.token == nil {
		return nil
	}

	data, err := json.Marshal(s.token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	// Save with restricted permissions
	return os.WriteFile(s.tokenFile, data, 0600)
}

func (s *Service) loadToken() error {
	if s.tokenFile == "" {
		return fmt.Errorf("no token file configured")
	}

	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var token models.TokenInfo
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	s.token = &token
	return nil
}

// Helper function for debugging
func getKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
