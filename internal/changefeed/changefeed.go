// Package changefeed turns Postgres notifications about chat webhook changes
// into typed events and fans them out to in-process subscribers.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/metrics"
)

// Channel is the Postgres notification channel fed by the chats trigger.
const Channel = "chat_webhooks"

const subscriptionBuffer = 64

type EventKind int

const (
	EventUpdate EventKind = iota + 1
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one change to a chat's webhook binding. WebhookURL is only
// meaningful for EventUpdate; nil means the chat has no webhook.
type Event struct {
	Kind       EventKind
	ChatID     string
	WebhookURL *string
}

type notification struct {
	Op         string  `json:"op"`
	ID         string  `json:"id"`
	WebhookURL *string `json:"webhook_url"`
}

// ParsePayload decodes a notification payload emitted by the chats trigger.
func ParsePayload(payload string) (Event, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Event{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.ID == "" {
		return Event{}, fmt.Errorf("notification has no chat id")
	}

	switch strings.ToUpper(n.Op) {
	case "UPDATE":
		return Event{Kind: EventUpdate, ChatID: n.ID, WebhookURL: n.WebhookURL}, nil
	case "DELETE":
		return Event{Kind: EventDelete, ChatID: n.ID}, nil
	default:
		return Event{}, fmt.Errorf("unsupported notification op %q", n.Op)
	}
}

// Subscription is a cancellable handle on the feed.
type Subscription struct {
	id     uint64
	events chan Event
	broker *Broker
	once   sync.Once
}

// Events delivers feed events until Close is called.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
	})
}

// Broker owns the single listening connection and the subscriber set.
type Broker struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

func NewBroker(pool *pgxpool.Pool, logger zerolog.Logger) *Broker {
	return &Broker{
		pool:   pool,
		logger: logger.With().Str("component", "changefeed").Logger(),
		subs:   make(map[uint64]*Subscription),
	}
}

func (b *Broker) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		events: make(chan Event, subscriptionBuffer),
		broker: b,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.events)
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers evt to every subscriber without blocking the feed.
func (b *Broker) Publish(evt Event) {
	metrics.ChangeFeedEvents.WithLabelValues(evt.Kind.String()).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		select {
		case sub.events <- evt:
		default:
			b.logger.Warn().
				Uint64("subscription", id).
				Str("chat_id", evt.ChatID).
				Msg("subscriber buffer full, dropping change event")
		}
	}
}

// Run listens until ctx is cancelled, reconnecting with a capped backoff.
func (b *Broker) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Error().Err(err).Dur("retry_in", backoff).Msg("change feed listener stopped")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (b *Broker) listen(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	b.logger.Info().Str("channel", Channel).Msg("listening for chat webhook changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("failed waiting for notification: %w", err)
		}

		evt, err := ParsePayload(n.Payload)
		if err != nil {
			b.logger.Warn().Err(err).Str("payload", n.Payload).Msg("ignoring malformed notification")
			continue
		}
		b.Publish(evt)
	}
}
