package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforms-backend/internal/middleware"
)

// Handlers are nil: every request below is rejected or served by middleware
// before a handler runs.
func newTestRouter(t *testing.T, jwtAuth *middleware.JWTAuth) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(DefaultAuthLimit, DefaultAuthWindow)
	t.Cleanup(limiter.Stop)
	return New(jwtAuth, limiter, nil, nil, nil, nil, nil, nil, nil, nil, Options{
		FrontendURL:    "http://localhost:3000",
		InternalAPIKey: "internal",
		Logger:         zerolog.Nop(),
	})
}

func TestRouter_RequiresAuth(t *testing.T) {
	r := newTestRouter(t, middleware.NewJWTAuth("secret"))

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/chats"},
		{http.MethodPost, "/api/v1/chats/" + uuid.NewString() + "/messages"},
		{http.MethodGet, "/api/v1/forms"},
		{http.MethodGet, "/api/v1/admin/users"},
		{http.MethodPost, "/api/v1/webhook/proxy"},
		{http.MethodPost, "/api/v1/webhook/relay"},
		{http.MethodGet, "/api/v1/jobs/" + uuid.NewString()},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}")))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_AdminRoutesRejectMembers(t *testing.T) {
	jwtAuth := middleware.NewJWTAuth("secret")
	r := newTestRouter(t, jwtAuth)

	token, err := jwtAuth.GenerateAccessToken(uuid.New(), "member@example.com", false)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/chats"},
		{http.MethodPut, "/api/v1/chats/" + uuid.NewString()},
		{http.MethodDelete, "/api/v1/chats/" + uuid.NewString()},
		{http.MethodPost, "/api/v1/forms"},
		{http.MethodGet, "/api/v1/forms/" + uuid.NewString() + "/responses"},
		{http.MethodGet, "/api/v1/admin/roles"},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusForbidden, rr.Code)
		})
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, middleware.NewJWTAuth("secret"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t, middleware.NewJWTAuth("secret"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chats", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
