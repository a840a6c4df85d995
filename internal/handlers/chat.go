package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/middleware"
	"chatforms-backend/internal/models"
	"chatforms-backend/internal/pipeline"
	"chatforms-backend/internal/session"
	"chatforms-backend/internal/webhook"
)

type chatRepository interface {
	Create(ctx context.Context, c *models.Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	List(ctx context.Context) ([]models.Chat, error)
	ListForRole(ctx context.Context, roleID *uuid.UUID) ([]models.Chat, error)
	Update(ctx context.Context, c *models.Chat) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type sessionProvider interface {
	Get(userID uuid.UUID) *session.Session
	Peek(userID uuid.UUID) (*session.Session, bool)
}

type ChatHandler struct {
	chats    chatRepository
	users    userLookup
	sessions sessionProvider
	logger   zerolog.Logger
}

func NewChatHandler(chats chatRepository, users userLookup, sessions sessionProvider, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, users: users, sessions: sessions, logger: logger}
}

// canAccess reports whether user may open chat. A chat without allowed roles
// is open to everyone.
func canAccess(chat *models.Chat, user *models.User, isAdmin bool) bool {
	if isAdmin || len(chat.AllowedRoles) == 0 {
		return true
	}
	if user.RoleID == nil {
		return false
	}
	for _, id := range chat.AllowedRoles {
		if id == *user.RoleID {
			return true
		}
	}
	return false
}

// loadChat fetches the chat named in the URL and checks the caller may see it.
func (h *ChatHandler) loadChat(w http.ResponseWriter, r *http.Request) (*models.Chat, *models.User, bool) {
	chatID, ok := urlUUID(w, r, "id", "chat")
	if !ok {
		return nil, nil, false
	}

	user, err := h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "User not found", r))
		return nil, nil, false
	}

	chat, err := h.chats.GetByID(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load chat", r))
		}
		return nil, nil, false
	}

	if !canAccess(chat, user, middleware.IsAdmin(r.Context())) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil, nil, false
	}
	return chat, user, true
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		chats []models.Chat
		err   error
	)
	if middleware.IsAdmin(r.Context()) {
		chats, err = h.chats.List(r.Context())
	} else {
		var user *models.User
		user, err = h.users.GetByID(r.Context(), middleware.GetUserID(r.Context()))
		if err == nil {
			chats, err = h.chats.ListForRole(r.Context(), user.RoleID)
		}
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list chats", r))
		return
	}
	if chats == nil {
		chats = []models.Chat{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chat, _, ok := h.loadChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.WebhookURL = blankToNil(req.WebhookURL)
	if !validateBody(w, r, req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	chat := &models.Chat{
		Name:         req.Name,
		Description:  req.Description,
		WebhookURL:   req.WebhookURL,
		AllowedRoles: req.AllowedRoles,
		CreatedBy:    &userID,
	}
	if chat.AllowedRoles == nil {
		chat.AllowedRoles = []uuid.UUID{}
	}
	if err := h.chats.Create(r.Context(), chat); err != nil {
		h.logger.Error().Err(err).Msg("failed to create chat")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create chat", r))
		return
	}

	// Inserts are not on the change feed; seed the creator's cache directly.
	h.seedCache(userID, chat)

	writeJSON(w, http.StatusCreated, chat)
}

func (h *ChatHandler) Update(w http.ResponseWriter, r *http.Request) {
	chatID, ok := urlUUID(w, r, "id", "chat")
	if !ok {
		return
	}

	var req models.UpdateChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateBody(w, r, req) {
		return
	}
	if req.WebhookURL != nil {
		if fields := validationFields(validate.Var(strings.TrimSpace(*req.WebhookURL), "omitempty,url")); len(fields) > 0 {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"webhook_url": "Must be a valid URL"}, r))
			return
		}
	}

	chat, err := h.chats.GetByID(r.Context(), chatID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
		return
	}

	if req.Name != nil {
		chat.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		chat.Description = req.Description
	}
	if req.WebhookURL != nil {
		chat.WebhookURL = blankToNil(req.WebhookURL)
	}
	if req.AllowedRoles != nil {
		chat.AllowedRoles = *req.AllowedRoles
	}

	if err := h.chats.Update(r.Context(), chat); err != nil {
		h.logger.Error().Err(err).Str("chat_id", chatID.String()).Msg("failed to update chat")
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update chat", r))
		return
	}

	h.seedCache(middleware.GetUserID(r.Context()), chat)

	writeJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID, ok := urlUUID(w, r, "id", "chat")
	if !ok {
		return
	}

	if err := h.chats.Delete(r.Context(), chatID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Chat not found", r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete chat", r))
		return
	}

	if s, ok := h.sessions.Peek(middleware.GetUserID(r.Context())); ok {
		s.Cache.Evict(chatID.String())
		s.Log.ClearChat(chatID.String())
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted"})
}

func (h *ChatHandler) seedCache(userID uuid.UUID, chat *models.Chat) {
	if s, ok := h.sessions.Peek(userID); ok {
		s.Cache.Set(chat.ID.String(), webhook.EntryFromNullable(chat.WebhookURL))
	}
}

// SendMessage appends the caller's message and starts the webhook leg. The
// reply arrives over the websocket; ?wait=true blocks for the outcome instead.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chat, user, ok := h.loadChat(w, r)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess := h.sessions.Get(user.ID)
	delivery, err := sess.Pipeline.Submit(r.Context(), chat.ID.String(), user.Author(), req.Message)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyMessage) {
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
				map[string]string{"message": "Message is required"}, r))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to send message", r))
		return
	}

	resp := models.SendMessageResponse{
		UserMessage: view(delivery.UserMessage),
		State:       delivery.State().String(),
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	outcome, err := delivery.Wait(r.Context())
	if err != nil {
		// Client went away; the delivery continues in the background.
		return
	}
	resp.State = outcome.State.String()
	if outcome.Reason != pipeline.ReasonNone {
		resp.Reason = outcome.Reason.String()
	}
	resp.Detail = outcome.Detail
	if outcome.BotMessage != nil {
		bot := view(*outcome.BotMessage)
		resp.BotMessage = &bot
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chat, user, ok := h.loadChat(w, r)
	if !ok {
		return
	}

	views := h.sessions.Get(user.ID).Log.Views(chat.ID.String())
	if views == nil {
		views = []models.MessageView{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": views})
}

func (h *ChatHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	chat, user, ok := h.loadChat(w, r)
	if !ok {
		return
	}

	h.sessions.Get(user.ID).Log.ClearChat(chat.ID.String())
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation cleared"})
}

func view(msg models.Message) models.MessageView {
	return models.MessageView{Message: msg, DisplayText: webhook.DisplayText(msg.Content)}
}
