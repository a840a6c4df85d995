package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforms-backend/internal/models"
)

func TestHTTPProxy_Forward(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ProxyPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(models.InternalKeyHeader))

		var req models.ProxyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.ProxyRequest{ChatID: "room2", Message: "hi", UserID: "u1"}, req)

		io.WriteString(w, `{"success":true,"response":{"output":"hello back"}}`)
	}))
	defer srv.Close()

	client := NewHTTPProxy(srv.URL+"/", "secret")
	resp, err := client.Forward(context.Background(), models.ProxyRequest{ChatID: "room2", Message: "hi", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"output":"hello back"}`, string(resp.Response))
}

func TestHTTPProxy_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"success":false,"error":"lookup failed"}`)
	}))
	defer srv.Close()

	client := NewHTTPProxy(srv.URL, "secret")
	_, err := client.Forward(context.Background(), models.ProxyRequest{ChatID: "c", Message: "hi", UserID: "u1"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "lookup failed", statusErr.Message)
}
