// Package stream serves the Mini App chat over WebSocket.
package stream

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the active WebSocket per user tab. A newer connection
// for the same tab replaces the old one.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a user and session.
func (m *ConnManager) GetActive(userKey, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[userKey]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a WebSocket connection for a user/session and closes the one
// it replaces.
func (m *ConnManager) Register(userKey, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	if _, exists := m.active[userKey]; !exists {
		m.active[userKey] = make(map[string]*websocket.Conn)
	}
	replaced := m.active[userKey][sessionID]
	m.active[userKey][sessionID] = conn
	m.mu.Unlock()

	// The close handshake can take seconds; do it outside the lock.
	if replaced != nil && replaced != conn {
		_ = replaced.Close(websocket.StatusNormalClosure, "session replaced")
	}
	slog.Info("Chat stream registered", "user_id", userKey, "session_id", sessionID)
}

// Unregister removes a WebSocket connection for a user/session if it is still
// the active one.
func (m *ConnManager) Unregister(userKey, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[userKey]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, userKey)
			}
			slog.Info("Chat stream unregistered", "user_id", userKey, "session_id", sessionID)
		}
	}
}

// Len returns the number of open streams.
func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// CloseAll terminates every open stream. Used on shutdown.
func (m *ConnManager) CloseAll() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]map[string]*websocket.Conn)
	m.mu.Unlock()

	for userKey, sessions := range active {
		for sid, conn := range sessions {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Chat stream closed", "user_id", userKey, "session_id", sid)
		}
	}
}
