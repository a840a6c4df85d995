package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeFormForward = "form-forward"

	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         string          `json:"type"`
	ReferenceID  uuid.UUID       `json:"reference_id"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types
const (
	WSTypeMessage      = "message"
	WSTypeTyping       = "typing"
	WSTypeNotification = "notification"
	WSTypeChatCleared  = "chat_cleared"
	WSTypeJobUpdate    = "job_update"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TypingEvent struct {
	ChatID string `json:"chat_id"`
	Active bool   `json:"active"`
}

type NotificationEvent struct {
	ChatID  string `json:"chat_id"`
	Level   string `json:"level"` // "error" | "warning"
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ChatClearedEvent struct {
	ChatID string `json:"chat_id"`
}

type JobUpdateEvent struct {
	JobID       uuid.UUID `json:"job_id"`
	ReferenceID uuid.UUID `json:"reference_id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
