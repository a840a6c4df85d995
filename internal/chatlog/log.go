// Package chatlog holds the volatile, per-chat ordered message history of a
// session. Nothing here is persisted.
package chatlog

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"chatforms-backend/internal/models"
	"chatforms-backend/internal/webhook"
)

// Observer is told about every mutation after it has been applied.
type Observer interface {
	MessageAppended(msg models.Message)
	ChatCleared(chatID string)
}

// Log is an append-only message history keyed by chat id. Each chat's slice
// is replaced on write, so snapshots handed to readers never change.
type Log struct {
	mu       sync.RWMutex
	chats    map[string][]models.Message
	observer Observer
}

func New(observer Observer) *Log {
	return &Log{
		chats:    make(map[string][]models.Message),
		observer: observer,
	}
}

// NewMessage builds a message with a fresh id and the current time.
func NewMessage(chatID string, author models.Author, content any) models.Message {
	return models.Message{
		ID:           ulid.Make().String(),
		ChatID:       chatID,
		CreatedAt:    time.Now(),
		Content:      content,
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorAvatar: author.Avatar,
	}
}

func (l *Log) Append(msg models.Message) {
	l.mu.Lock()
	cur := l.chats[msg.ChatID]
	// full slice expression forces a copy, leaving older snapshots intact
	l.chats[msg.ChatID] = append(cur[:len(cur):len(cur)], msg)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.MessageAppended(msg)
	}
}

// Messages returns the chat's messages in append order. Callers must not
// modify the returned slice.
func (l *Log) Messages(chatID string) []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chats[chatID]
}

// Views returns the chat's messages with link-repaired display text.
func (l *Log) Views(chatID string) []models.MessageView {
	msgs := l.Messages(chatID)
	views := make([]models.MessageView, len(msgs))
	for i, msg := range msgs {
		views[i] = models.MessageView{Message: msg, DisplayText: webhook.DisplayText(msg.Content)}
	}
	return views
}

func (l *Log) Len(chatID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chats[chatID])
}

// ChatIDs lists chats that currently hold messages.
func (l *Log) ChatIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.chats))
	for id := range l.chats {
		ids = append(ids, id)
	}
	return ids
}

func (l *Log) ClearChat(chatID string) {
	l.mu.Lock()
	delete(l.chats, chatID)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.ChatCleared(chatID)
	}
}

// Clear drops every chat. Observers are not notified.
func (l *Log) Clear() {
	l.mu.Lock()
	l.chats = make(map[string][]models.Message)
	l.mu.Unlock()
}
