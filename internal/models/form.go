package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ForwardStatusNone      = "none"
	ForwardStatusPending   = "pending"
	ForwardStatusDelivered = "delivered"
	ForwardStatusFailed    = "failed"
)

// FormField describes one input of a dynamically defined form.
type FormField struct {
	Name     string   `json:"name" validate:"required"`
	Label    string   `json:"label" validate:"required"`
	Type     string   `json:"type" validate:"required,oneof=text textarea number email select checkbox date"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

type Form struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description *string     `json:"description"`
	Fields      []FormField `json:"fields"`
	WebhookURL  *string     `json:"webhook_url"`
	IsPublished bool        `json:"is_published"`
	CreatedBy   *uuid.UUID  `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type FormResponse struct {
	ID            uuid.UUID       `json:"id"`
	FormID        uuid.UUID       `json:"form_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Data          json.RawMessage `json:"data"`
	ForwardStatus string          `json:"forward_status"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

type SaveFormRequest struct {
	Title       string      `json:"title" validate:"required,max=200"`
	Description *string     `json:"description"`
	Fields      []FormField `json:"fields" validate:"required,min=1,dive"`
	WebhookURL  *string     `json:"webhook_url" validate:"omitempty,url"`
	IsPublished bool        `json:"is_published"`
}

type SubmitFormRequest struct {
	Data map[string]any `json:"data" validate:"required"`
}
