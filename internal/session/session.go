// Package session owns the per-user state behind the chat UI: the webhook
// cache, the message log and the pipeline that writes to it.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/changefeed"
	"chatforms-backend/internal/chatlog"
	"chatforms-backend/internal/models"
	"chatforms-backend/internal/pipeline"
	"chatforms-backend/internal/webhook"
)

const publishTimeout = 5 * time.Second

// Publisher delivers a websocket message to every connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

type Session struct {
	UserID   uuid.UUID
	Cache    *webhook.Cache
	Log      *chatlog.Log
	Pipeline *pipeline.Pipeline

	lastSeen  atomic.Int64
	closeOnce sync.Once
	closed    atomic.Bool
}

type deps struct {
	store          webhook.Store
	feed           *changefeed.Broker
	proxy          pipeline.Proxy
	publisher      Publisher
	webhookTimeout time.Duration
	botName        string
	logger         zerolog.Logger
}

func newSession(userID uuid.UUID, d deps, now time.Time) *Session {
	logger := d.logger.With().Str("user_id", userID.String()).Logger()
	sink := &eventSink{userID: userID, publisher: d.publisher, logger: logger}

	cache := webhook.NewCache(d.store, logger)
	log := chatlog.New(sink)
	s := &Session{
		UserID: userID,
		Cache:  cache,
		Log:    log,
		Pipeline: pipeline.New(log, cache, d.proxy, sink, pipeline.Options{
			Timeout: d.webhookTimeout,
			BotName: d.botName,
			Logger:  logger,
		}),
	}
	cache.Watch(d.feed)
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Touch records activity so the reaper keeps the session alive.
func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close releases the change feed subscription and drops cached state.
// In-flight deliveries finish but their replies land in an emptied log.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.Cache.Close()
		s.Cache.Clear()
		s.Log.Clear()
	})
}

// eventSink turns log mutations and pipeline side effects into websocket
// messages for the session's user.
type eventSink struct {
	userID    uuid.UUID
	publisher Publisher
	logger    zerolog.Logger
}

func (e *eventSink) publish(msgType string, payload any) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, e.userID, models.WSMessage{Type: msgType, Payload: payload}); err != nil {
		e.logger.Warn().Err(err).Str("type", msgType).Msg("failed to publish session event")
	}
}

func (e *eventSink) MessageAppended(msg models.Message) {
	e.publish(models.WSTypeMessage, models.MessageView{
		Message:     msg,
		DisplayText: webhook.DisplayText(msg.Content),
	})
}

func (e *eventSink) ChatCleared(chatID string) {
	e.publish(models.WSTypeChatCleared, models.ChatClearedEvent{ChatID: chatID})
}

func (e *eventSink) Typing(chatID string, active bool) {
	e.publish(models.WSTypeTyping, models.TypingEvent{ChatID: chatID, Active: active})
}

func (e *eventSink) Notify(n pipeline.Notification) {
	level := "error"
	if n.Reason == pipeline.ReasonResolveFailed {
		level = "warning"
	}
	e.publish(models.WSTypeNotification, models.NotificationEvent{
		ChatID:  n.ChatID,
		Level:   level,
		Reason:  n.Reason.String(),
		Message: n.Message,
	})
}
