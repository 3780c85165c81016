// Package ws manages the set of live duplex connections and their sessions.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/autumn-voice/gateway/internal/metrics"
	"github.com/autumn-voice/gateway/internal/pipeline"
)

// Session is the server-side state bound to one live connection. The session
// exclusively owns its pipeline (and through it the conversation log); only
// the connection's read loop drives it.
type Session struct {
	ID   string
	Pipe *pipeline.Pipeline

	conn   *websocket.Conn
	mu     sync.Mutex // serializes writes and guards closed
	closed bool
}

// Send marshals and writes one outbound message. Sending on a closed or
// failed connection is logged and swallowed; a dead client must never take
// the session's goroutine down with it.
func (s *Session) Send(msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		slog.Debug("dropping message for closed session", "session_id", s.ID)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal outbound message", "session_id", s.ID, "error", err)
		return
	}
	if err = s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Warn("write to connection failed", "session_id", s.ID, "error", err)
	}
}

// markClosed flips the session to closed; subsequent Sends become no-ops.
func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Manager tracks live sessions. It is the only state shared across
// connections, so registration and removal are the only places that lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	slog.Info("session connected", "session_id", s.ID, "total", n)
}

func (m *Manager) remove(s *Session) {
	s.markClosed()

	m.mu.Lock()
	delete(m.sessions, s.ID)
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SessionsActive.Dec()
	slog.Info("session disconnected", "session_id", s.ID, "total", n)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
