package webhook

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"chatforms-backend/internal/changefeed"
	"chatforms-backend/internal/metrics"
)

type entryState uint8

const (
	stateUnresolved entryState = iota
	stateNone
	stateSome
)

// Entry is the cached knowledge about one chat's webhook: never asked,
// explicitly none, or a URL. The zero value is unresolved.
type Entry struct {
	state entryState
	url   string
}

// NoWebhook is the resolved "no webhook configured" entry.
func NoWebhook() Entry {
	return Entry{state: stateNone}
}

// WebhookURL returns a resolved entry for url; a blank url resolves to NoWebhook.
func WebhookURL(url string) Entry {
	url = strings.TrimSpace(url)
	if url == "" {
		return NoWebhook()
	}
	return Entry{state: stateSome, url: url}
}

// EntryFromNullable maps a nullable column value to an entry.
func EntryFromNullable(url *string) Entry {
	if url == nil {
		return NoWebhook()
	}
	return WebhookURL(*url)
}

func (e Entry) Resolved() bool { return e.state != stateUnresolved }

// URL returns the webhook URL and whether one is configured.
func (e Entry) URL() (string, bool) {
	return e.url, e.state == stateSome
}

func (e Entry) String() string {
	switch e.state {
	case stateNone:
		return "none"
	case stateSome:
		return e.url
	default:
		return "unresolved"
	}
}

// Store is the authoritative source of chat webhook URLs.
type Store interface {
	WebhookURL(ctx context.Context, chatID string) (*string, error)
}

// ResolveError reports that the store could not be queried. The cache has
// already degraded the chat to NoWebhook when this is returned.
type ResolveError struct {
	ChatID string
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to resolve webhook for chat %s: %v", e.ChatID, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Cache memoizes chat webhook URLs for one session and follows the change feed.
type Cache struct {
	store  Store
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]Entry

	watchOnce sync.Once
	closeOnce sync.Once
	sub       *changefeed.Subscription
	done      chan struct{}
}

func NewCache(store Store, logger zerolog.Logger) *Cache {
	return &Cache{
		store:   store,
		logger:  logger.With().Str("component", "webhook_cache").Logger(),
		entries: make(map[string]Entry),
		done:    make(chan struct{}),
	}
}

// Lookup returns the cached entry without querying the store.
func (c *Cache) Lookup(chatID string) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[chatID]
}

// Resolve returns the cached entry, querying the store on first use.
// A failed query is cached as NoWebhook and reported only on this call.
func (c *Cache) Resolve(ctx context.Context, chatID string) (Entry, error) {
	if entry := c.Lookup(chatID); entry.Resolved() {
		metrics.WebhookCacheLookups.WithLabelValues("hit").Inc()
		return entry, nil
	}

	url, err := c.store.WebhookURL(ctx, chatID)
	if err != nil {
		metrics.WebhookCacheLookups.WithLabelValues("error").Inc()
		c.Set(chatID, NoWebhook())
		c.logger.Warn().Err(err).Str("chat_id", chatID).Msg("webhook lookup failed, caching none")
		return NoWebhook(), &ResolveError{ChatID: chatID, Err: err}
	}

	metrics.WebhookCacheLookups.WithLabelValues("miss").Inc()
	entry := EntryFromNullable(url)
	c.Set(chatID, entry)
	return entry, nil
}

// Set overwrites the entry for chatID. Unresolved entries are treated as Evict.
func (c *Cache) Set(chatID string, entry Entry) {
	if !entry.Resolved() {
		c.Evict(chatID)
		return
	}
	c.mu.Lock()
	c.entries[chatID] = entry
	c.mu.Unlock()
}

func (c *Cache) Evict(chatID string) {
	c.mu.Lock()
	delete(c.entries, chatID)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

// Len returns the number of resolved entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Apply folds one change event into the cache.
func (c *Cache) Apply(evt changefeed.Event) {
	switch evt.Kind {
	case changefeed.EventUpdate:
		c.Set(evt.ChatID, EntryFromNullable(evt.WebhookURL))
	case changefeed.EventDelete:
		c.Evict(evt.ChatID)
	}
}

// Watch attaches the cache to the feed. Only the first call subscribes.
func (c *Cache) Watch(feed *changefeed.Broker) {
	if feed == nil {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	c.watchOnce.Do(func() {
		c.sub = feed.Subscribe()
		go c.consume(c.sub)
	})
}

func (c *Cache) consume(sub *changefeed.Subscription) {
	for {
		select {
		case <-c.done:
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

// Close tears the feed subscription down. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.sub != nil {
			c.sub.Close()
		}
	})
}
