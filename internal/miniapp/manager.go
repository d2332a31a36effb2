package miniapp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/tinyagents/internal/catalog"
)

const sweepInterval = 5 * time.Minute

// Manager owns one Session per user tab.
type Manager struct {
	catalog *catalog.Catalog
	replier Replier

	mu     sync.RWMutex
	active map[string]map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cat *catalog.Catalog, replier Replier) *Manager {
	return &Manager{
		catalog: cat,
		replier: replier,
		active:  make(map[string]map[string]*Session),
	}
}

// Catalog returns the catalog sessions select from.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Get returns the session for userKey/sessionID, creating it if needed.
func (m *Manager) Get(userKey, sessionID string) *Session {
	m.mu.RLock()
	s := m.active[userKey][sessionID]
	m.mu.RUnlock()
	if s != nil {
		s.Touch()
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[userKey]; !ok {
		m.active[userKey] = make(map[string]*Session)
	}
	if s = m.active[userKey][sessionID]; s == nil {
		s = NewSession(userKey, sessionID, m.catalog, m.replier)
		m.active[userKey][sessionID] = s
		slog.Debug("Mini App session created", "user_id", userKey, "session_id", sessionID)
	}
	return s
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// CloseAll drops every session and releases their subscribers. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]*Session)
	m.mu.Unlock()

	for _, sessions := range active {
		for _, s := range sessions {
			s.close()
		}
	}
}

// Sweep evicts sessions idle for longer than ttl and returns how many were removed.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	var evicted []*Session

	m.mu.Lock()
	for userKey, sessions := range m.active {
		for sid, s := range sessions {
			if s.idleSince(cutoff) {
				delete(sessions, sid)
				evicted = append(evicted, s)
			}
		}
		if len(sessions) == 0 {
			delete(m.active, userKey)
		}
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.close()
	}
	return len(evicted)
}

// StartSweeper runs a background goroutine that periodically evicts idle
// sessions until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", sweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(ttl); n > 0 {
					slog.Info("Session sweeper evicted idle sessions", "count", n)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
