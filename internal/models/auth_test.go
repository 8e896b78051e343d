package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daybookhq/scribe/internal/models"
)

func TestTokenInfo_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "valid token", expiresAt: time.Now().Add(time.Hour), want: false},
		{name: "expired token", expiresAt: time.Now().Add(-time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &models.TokenInfo{
				Token:     "tok-123",
				ExpiresAt: tt.expiresAt,
				Email:     "user@example.com",
			}
			assert.Equal(t, tt.want, token.IsExpired())
		})
	}
}
