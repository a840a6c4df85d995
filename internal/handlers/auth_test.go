package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforms-backend/internal/models"
	"chatforms-backend/internal/services"
)

type stubAuthService struct {
	registerErr error
	logoutUser  uuid.UUID
}

func (s *stubAuthService) Register(context.Context, models.RegisterRequest) (*models.User, *models.AuthTokens, error) {
	if s.registerErr != nil {
		return nil, nil, s.registerErr
	}
	return &models.User{ID: uuid.New()}, &models.AuthTokens{AccessToken: "a", RefreshToken: "r"}, nil
}

func (s *stubAuthService) Login(context.Context, models.LoginRequest) (*models.AuthTokens, error) {
	return nil, &services.UnauthorizedError{Message: "Invalid email or password"}
}

func (s *stubAuthService) RefreshToken(context.Context, string) (*models.AuthTokens, error) {
	return &models.AuthTokens{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubAuthService) Logout(context.Context, string) (uuid.UUID, error) {
	return s.logoutUser, nil
}

type recordingEnder struct{ ended []uuid.UUID }

func (r *recordingEnder) End(userID uuid.UUID) bool {
	r.ended = append(r.ended, userID)
	return true
}

func TestAuthHandler_RegisterMapsServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"created", nil, http.StatusCreated, ""},
		{"validation", &services.ValidationError{Fields: map[string]string{"email": "Invalid email format"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "Email already in use"}, http.StatusConflict, "CONFLICT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthHandler(&stubAuthService{registerErr: tc.err}, &recordingEnder{})

			rr := httptest.NewRecorder()
			h.Register(rr, postJSON("/api/v1/auth/register", `{"full_name":"Ada","email":"ada@example.com","password":"password1"}`))

			assert.Equal(t, tc.status, rr.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, rr).Code)
			}
		})
	}
}

func TestAuthHandler_LoginUnauthorized(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, &recordingEnder{})

	rr := httptest.NewRecorder()
	h.Login(rr, postJSON("/api/v1/auth/login", `{"email":"ada@example.com","password":"nope"}`))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rr).Code)
}

func TestAuthHandler_InvalidBody(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, &recordingEnder{})

	rr := httptest.NewRecorder()
	h.Refresh(rr, postJSON("/api/v1/auth/refresh", `{not json`))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuthHandler_LogoutEndsSession(t *testing.T) {
	userID := uuid.New()
	ender := &recordingEnder{}
	h := NewAuthHandler(&stubAuthService{logoutUser: userID}, ender)

	rr := httptest.NewRecorder()
	h.Logout(rr, postJSON("/api/v1/auth/logout", `{"refresh_token":"r"}`))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []uuid.UUID{userID}, ender.ended)
}

func TestAuthHandler_LogoutUnknownToken(t *testing.T) {
	ender := &recordingEnder{}
	h := NewAuthHandler(&stubAuthService{}, ender)

	rr := httptest.NewRecorder()
	h.Logout(rr, postJSON("/api/v1/auth/logout", `{"refresh_token":"gone"}`))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, ender.ended)
}
