package models

import (
	"time"

	"github.com/google/uuid"
)

// SystemAuthorID marks messages produced from a webhook response.
const SystemAuthorID = "system"

// DefaultBotName is used as the author name of webhook-derived messages.
const DefaultBotName = "Assistant"

type Chat struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Description  *string     `json:"description"`
	WebhookURL   *string     `json:"webhook_url"`
	AllowedRoles []uuid.UUID `json:"allowed_roles"`
	CreatedBy    *uuid.UUID  `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Message is one chat utterance held in a session's message log.
// Content is either a string or the structured value a webhook returned.
type Message struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chat_id"`
	CreatedAt    time.Time `json:"created_at"`
	Content      any       `json:"content"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	AuthorAvatar *string   `json:"author_avatar"`
}

// IsFromSystem reports whether the message was derived from a webhook reply.
func (m Message) IsFromSystem() bool {
	return m.AuthorID == SystemAuthorID
}

// Author carries the display fields copied onto a message when it is created.
type Author struct {
	ID     string
	Name   string
	Avatar *string
}

type CreateChatRequest struct {
	Name         string      `json:"name" validate:"required,max=120"`
	Description  *string     `json:"description"`
	WebhookURL   *string     `json:"webhook_url" validate:"omitempty,url"`
	AllowedRoles []uuid.UUID `json:"allowed_roles"`
}

type UpdateChatRequest struct {
	Name         *string      `json:"name" validate:"omitempty,min=1,max=120"`
	Description  *string      `json:"description"`
	WebhookURL   *string      `json:"webhook_url" validate:"omitempty"`
	AllowedRoles *[]uuid.UUID `json:"allowed_roles"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

// MessageView is a message as returned to clients, with link-repaired text.
type MessageView struct {
	Message
	DisplayText string `json:"display_text"`
}

// SendMessageResponse is returned by the send endpoint. Without ?wait=true only
// UserMessage and State are set.
type SendMessageResponse struct {
	UserMessage MessageView  `json:"user_message"`
	State       string       `json:"state"`
	Reason      string       `json:"reason,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	BotMessage  *MessageView `json:"bot_message,omitempty"`
}
