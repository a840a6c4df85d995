package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("6f1c3f3e-8c1a-4b57-9a43-0d2e8f9b1c11")
	assert.Equal(t, "user_updates:6f1c3f3e-8c1a-4b57-9a43-0d2e8f9b1c11", Channel(id))
}

func TestAuthenticate(t *testing.T) {
	hub := NewHub(nil, "secret", zerolog.Nop())
	userID := uuid.New()

	valid := signToken(t, "secret", jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	got, err := hub.authenticate(valid)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "other", jwt.MapClaims{"user_id": userID.String()})},
		{"expired", signToken(t, "secret", jwt.MapClaims{
			"user_id": userID.String(),
			"exp":     time.Now().Add(-time.Minute).Unix(),
		})},
		{"bad user id", signToken(t, "secret", jwt.MapClaims{"user_id": "nope"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := hub.authenticate(tc.token)
			assert.Error(t, err)
		})
	}
}

func TestHandleWebSocket_RejectsMissingToken(t *testing.T) {
	hub := NewHub(nil, "secret", zerolog.Nop())

	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, hub.ConnectionCount(uuid.New()))
}
