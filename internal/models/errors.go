package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeAuth           = "AUTH_ERROR"
	ErrCodeRecordNotFound = "RECORD_NOT_FOUND"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeStorage        = "STORAGE_ERROR"
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT"
	ErrCodeServerError    = "SERVER_ERROR"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRecordNotFound   = errors.New("record not found")
	ErrInvalidKind      = errors.New("invalid record kind")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSessionClosed    = errors.New("session closed")
	ErrRateLimited      = errors.New("rate limited")
	ErrConnectionLost   = errors.New("connection lost")
)

// APIError represents an error from the API.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// SaveError provides context for a failed persist attempt. The coordinator
// logs these; they never propagate into the editing path.
type SaveError struct {
	Kind     RecordKind
	RecordID string
	Attempt  int
	Err      error
}

func (e *SaveError) Error() string {
	target := e.RecordID
	if e.Kind != "" {
		target = string(e.Kind) + " " + e.RecordID
	}
	if e.Attempt > 1 {
		return fmt.Sprintf("save %s (attempt %d): %v", target, e.Attempt, e.Err)
	}
	return fmt.Sprintf("save %s: %v", target, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
