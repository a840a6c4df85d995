package chatlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatforms-backend/internal/models"
)

type recordingObserver struct {
	mu       sync.Mutex
	appended []models.Message
	cleared  []string
}

func (o *recordingObserver) MessageAppended(msg models.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appended = append(o.appended, msg)
}

func (o *recordingObserver) ChatCleared(chatID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleared = append(o.cleared, chatID)
}

var alice = models.Author{ID: "u1", Name: "Alice"}

func TestNewMessage(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	msg := NewMessage("room1", models.Author{ID: "u1", Name: "Alice", Avatar: &avatar}, "hi")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "room1", msg.ChatID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "Alice", msg.AuthorName)
	assert.Equal(t, &avatar, msg.AuthorAvatar)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.NotEqual(t, msg.ID, NewMessage("room1", alice, "hi").ID)
}

func TestLog_AppendKeepsOrderPerChat(t *testing.T) {
	obs := &recordingObserver{}
	l := New(obs)

	l.Append(NewMessage("a", alice, "1"))
	l.Append(NewMessage("b", alice, "x"))
	l.Append(NewMessage("a", alice, "2"))

	msgs := l.Messages("a")
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].Content)
	assert.Equal(t, "2", msgs[1].Content)
	assert.Equal(t, 1, l.Len("b"))
	assert.Len(t, obs.appended, 3)
	assert.ElementsMatch(t, []string{"a", "b"}, l.ChatIDs())
}

func TestLog_SnapshotsAreStable(t *testing.T) {
	l := New(nil)
	l.Append(NewMessage("a", alice, "1"))
	snapshot := l.Messages("a")

	l.Append(NewMessage("a", alice, "2"))
	l.Append(NewMessage("a", alice, "3"))

	assert.Len(t, snapshot, 1)
	assert.Len(t, l.Messages("a"), 3)
}

func TestLog_ClearChatAndClear(t *testing.T) {
	obs := &recordingObserver{}
	l := New(obs)
	l.Append(NewMessage("a", alice, "1"))
	l.Append(NewMessage("b", alice, "1"))

	l.ClearChat("a")
	assert.Empty(t, l.Messages("a"))
	assert.Equal(t, 1, l.Len("b"))
	assert.Equal(t, []string{"a"}, obs.cleared)

	l.Clear()
	assert.Empty(t, l.ChatIDs())
}

func TestLog_Views(t *testing.T) {
	l := New(nil)
	l.Append(NewMessage("a", alice, "https://x.example.com/[f](https://drive.google.com/file/d/1/view)"))
	l.Append(NewMessage("a", alice, map[string]any{"k": 1}))

	views := l.Views("a")
	require.Len(t, views, 2)
	assert.Equal(t, "[f](https://drive.google.com/file/d/1/view)", views[0].DisplayText)
	assert.Equal(t, `{"k":1}`, views[1].DisplayText)
}

func TestLog_ConcurrentAppends(t *testing.T) {
	l := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(NewMessage("a", alice, "m"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len("a"))
}
