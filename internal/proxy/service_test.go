package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforms-backend/internal/models"
	"chatforms-backend/internal/webhook"
)

type stubChats struct {
	urls map[string]*string
	err  error
}

func (s *stubChats) WebhookURL(_ context.Context, chatID string) (*string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.urls[chatID], nil
}

func strPtr(s string) *string { return &s }

func newService(t *testing.T, chats ChatStore, timeout time.Duration) *Service {
	t.Helper()
	return NewService(chats, webhook.NewForwarder(timeout, zerolog.Nop()), zerolog.Nop())
}

func TestForward_RelaysJSONReply(t *testing.T) {
	var received models.ProxyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"output":"hello back"}`)
	}))
	defer srv.Close()

	svc := newService(t, &stubChats{urls: map[string]*string{"room2": strPtr(srv.URL)}}, time.Second)
	req := models.ProxyRequest{ChatID: "room2", Message: "hi", UserID: "u1"}

	resp, err := svc.Forward(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"output":"hello back"}`, string(resp.Response))
	assert.Equal(t, req, received)
}

func TestForward_NoWebhookConfigured(t *testing.T) {
	svc := newService(t, &stubChats{urls: map[string]*string{"room1": strPtr("  ")}}, time.Second)

	for _, chatID := range []string{"room1", "unknown"} {
		resp, err := svc.Forward(context.Background(), models.ProxyRequest{ChatID: chatID, Message: "hi", UserID: "u1"})
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Response)
	}
}

func TestForward_PlainTextReplyBecomesJSONString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "just text")
	}))
	defer srv.Close()

	svc := newService(t, &stubChats{urls: map[string]*string{"c": strPtr(srv.URL)}}, time.Second)
	resp, err := svc.Forward(context.Background(), models.ProxyRequest{ChatID: "c", Message: "hi", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, `"just text"`, string(resp.Response))
}

func TestForward_WebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := newService(t, &stubChats{urls: map[string]*string{"c": strPtr(srv.URL)}}, time.Second)
	resp, err := svc.Forward(context.Background(), models.ProxyRequest{ChatID: "c", Message: "hi", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "502")
}

func TestForward_TimeoutIsBusinessFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	svc := newService(t, &stubChats{urls: map[string]*string{"c": strPtr(srv.URL)}}, 50*time.Millisecond)
	resp, err := svc.Forward(context.Background(), models.ProxyRequest{ChatID: "c", Message: "hi", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Regexp(t, `^timeout`, resp.Error)
}

func TestForward_LookupFailure(t *testing.T) {
	svc := newService(t, &stubChats{err: errors.New("db down")}, time.Second)

	_, err := svc.Forward(context.Background(), models.ProxyRequest{ChatID: "c", Message: "hi", UserID: "u1"})
	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "c", lookupErr.ChatID)
}

func TestRelay(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":7}`)
	}))
	defer srv.Close()

	svc := newService(t, &stubChats{}, time.Second)
	resp, err := svc.Relay(context.Background(), map[string]any{
		"webhook_url": srv.URL,
		"name":        "Ada",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Ada"}, received)
	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)
	assert.Equal(t, `{"id":7}`, resp.Response)
}

func TestRelay_MissingURL(t *testing.T) {
	svc := newService(t, &stubChats{}, time.Second)

	_, err := svc.Relay(context.Background(), map[string]any{"name": "Ada"})
	assert.ErrorIs(t, err, ErrMissingRelayURL)
}

func TestRelay_InvalidURL(t *testing.T) {
	svc := newService(t, &stubChats{}, time.Second)

	_, err := svc.Relay(context.Background(), map[string]any{"webhook_url": "ftp://example.com"})
	assert.ErrorIs(t, err, webhook.ErrInvalidURL)
}
