package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/changefeed"
	"chatforms-backend/internal/metrics"
	"chatforms-backend/internal/pipeline"
	"chatforms-backend/internal/webhook"
)

// ReapSchedule is how often idle sessions are looked for.
const ReapSchedule = "@every 1m"

type Options struct {
	IdleTimeout    time.Duration
	WebhookTimeout time.Duration
	BotName        string
}

// Manager creates sessions on first use and disposes of them on logout,
// after IdleTimeout without activity, or at shutdown.
type Manager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	deps   deps
	idle   time.Duration
	now    func() time.Time
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewManager(store webhook.Store, feed *changefeed.Broker, proxy pipeline.Proxy, publisher Publisher, opts Options, logger zerolog.Logger) *Manager {
	logger = logger.With().Str("component", "sessions").Logger()
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		deps: deps{
			store:          store,
			feed:           feed,
			proxy:          proxy,
			publisher:      publisher,
			webhookTimeout: opts.WebhookTimeout,
			botName:        opts.BotName,
			logger:         logger,
		},
		idle:   opts.IdleTimeout,
		now:    time.Now,
		logger: logger,
	}
}

// Get returns the user's session, creating it if needed, and marks it active.
func (m *Manager) Get(userID uuid.UUID) *Session {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		s.Touch(now)
		return s
	}

	s := newSession(userID, m.deps, now)
	m.sessions[userID] = s
	metrics.ActiveSessions.Inc()
	m.logger.Debug().Str("user_id", userID.String()).Msg("session started")
	return s
}

// Peek returns the session without creating or touching it.
func (m *Manager) Peek(userID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// End disposes of the user's session. It reports whether one existed.
func (m *Manager) End(userID uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	metrics.ActiveSessions.Dec()
	m.logger.Debug().Str("user_id", userID.String()).Msg("session ended")
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap ends every session idle for longer than the idle timeout.
func (m *Manager) Reap() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idle)

	var stale []uuid.UUID
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	reaped := 0
	for _, id := range stale {
		if m.End(id) {
			reaped++
		}
	}
	if reaped > 0 {
		m.logger.Info().Int("count", reaped).Msg("reaped idle sessions")
	}
	return reaped
}

// StartReaper schedules Reap on ReapSchedule.
func (m *Manager) StartReaper() error {
	c := cron.New()
	if _, err := c.AddFunc(ReapSchedule, func() { m.Reap() }); err != nil {
		return fmt.Errorf("failed to schedule session reaper: %w", err)
	}
	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	c.Start()
	return nil
}

// Close stops the reaper and ends every session.
func (m *Manager) Close() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	ids := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, id := range ids {
		m.End(id)
	}
}
