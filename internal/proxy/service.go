package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatforms-backend/internal/models"
	"chatforms-backend/internal/webhook"
)

// RelayURLKey names the relay payload field that carries the target URL.
const RelayURLKey = "webhook_url"

var ErrMissingRelayURL = errors.New("webhook_url is required")

// ChatStore is the authoritative source of chat webhook URLs.
type ChatStore interface {
	WebhookURL(ctx context.Context, chatID string) (*string, error)
}

// Poster performs the outbound call.
type Poster interface {
	PostJSON(ctx context.Context, kind, target string, payload any) (*webhook.Reply, error)
	Timeout() time.Duration
}

// LookupError means the proxy could not determine where to forward to.
type LookupError struct {
	ChatID string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("failed to look up webhook for chat %s: %v", e.ChatID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Service is the stateless server-side webhook relay.
type Service struct {
	chats  ChatStore
	poster Poster
	logger zerolog.Logger
}

func NewService(chats ChatStore, poster Poster, logger zerolog.Logger) *Service {
	return &Service{
		chats:  chats,
		poster: poster,
		logger: logger.With().Str("component", "webhook_proxy").Logger(),
	}
}

// Forward posts req to the chat's webhook. Every business outcome, timeouts
// included, comes back as a ProxyResponse; an error is returned only when the
// webhook could not be looked up.
func (s *Service) Forward(ctx context.Context, req models.ProxyRequest) (*models.ProxyResponse, error) {
	url, err := s.chats.WebhookURL(ctx, req.ChatID)
	if err != nil {
		return nil, &LookupError{ChatID: req.ChatID, Err: err}
	}

	target, ok := webhook.EntryFromNullable(url).URL()
	if !ok {
		return &models.ProxyResponse{Success: true}, nil
	}

	reply, err := s.poster.PostJSON(ctx, "chat", target, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("chat_id", req.ChatID).Msg("webhook call failed")
		if errors.Is(err, webhook.ErrTimeout) {
			return &models.ProxyResponse{
				Success: false,
				Error:   fmt.Sprintf("timeout: webhook did not respond within %s", s.poster.Timeout()),
			}, nil
		}
		return &models.ProxyResponse{Success: false, Error: err.Error()}, nil
	}

	if !reply.OK() {
		return &models.ProxyResponse{
			Success: false,
			Error:   fmt.Sprintf("webhook returned %d %s", reply.Status, reply.StatusText),
		}, nil
	}

	return &models.ProxyResponse{Success: true, Response: asJSON(reply.Body)}, nil
}

// Relay forwards payload, minus its webhook_url field, to that URL.
func (s *Service) Relay(ctx context.Context, payload map[string]any) (*models.RelayResponse, error) {
	target, _ := payload[RelayURLKey].(string)
	if target == "" {
		return nil, ErrMissingRelayURL
	}

	body := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != RelayURLKey {
			body[k] = v
		}
	}

	reply, err := s.poster.PostJSON(ctx, "relay", target, body)
	if err != nil {
		return nil, err
	}

	return &models.RelayResponse{
		Success:    reply.OK(),
		Status:     reply.Status,
		StatusText: reply.StatusText,
		Response:   string(reply.Body),
	}, nil
}

// asJSON returns body if it is valid JSON, otherwise body encoded as a
// JSON string. An empty body yields nil.
func asJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(string(body))
	return encoded
}
