package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/models"
	"chatforms-backend/internal/proxy"
)

type webhookService interface {
	Forward(ctx context.Context, req models.ProxyRequest) (*models.ProxyResponse, error)
	Relay(ctx context.Context, payload map[string]any) (*models.RelayResponse, error)
}

type WebhookHandler struct {
	service webhookService
	logger  zerolog.Logger
}

func NewWebhookHandler(service webhookService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// Proxy forwards a chat message to the chat's webhook. Business failures
// are reported with a 200 so callers can tell them apart from the proxy
// itself failing.
func (h *WebhookHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	var req models.ProxyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Browser callers always speak for themselves; only the internal key
	// may name another user.
	if !middleware.IsInternal(r.Context()) {
		if userID := middleware.GetUserID(r.Context()); userID != uuid.Nil {
			req.UserID = userID.String()
		}
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ProxyResponse{
			Success: false,
			Error:   "chatId, message and userId are required",
		})
		return
	}

	resp, err := h.service.Forward(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("chat_id", req.ChatID).Msg("webhook proxy failed")
		writeJSON(w, http.StatusInternalServerError, models.ProxyResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Relay posts an arbitrary payload to the URL in its webhook_url field.
func (h *WebhookHandler) Relay(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if !decodeJSON(w, r, &payload) {
		return
	}

	resp, err := h.service.Relay(r.Context(), payload)
	if err != nil {
		if errors.Is(err, proxy.ErrMissingRelayURL) {
			writeJSON(w, http.StatusBadRequest, models.RelayResponse{Success: false, Error: err.Error()})
			return
		}
		h.logger.Warn().Err(err).Msg("webhook relay failed")
		writeJSON(w, http.StatusInternalServerError, models.RelayResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
