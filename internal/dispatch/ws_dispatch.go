package dispatch

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/bike-help/internal/models"
)

// WSSession represents a connected rider's websocket
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(a)
}

// WSRegistry holds live rider sessions keyed by user id. A reconnect
// replaces the previous session.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[userID]; ok {
		_ = old.conn.Close()
	}
	r.sessions[userID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		_ = s.conn.Close()
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Notify(a models.Alert) error {
	r.mu.RLock()
	s, ok := r.sessions[a.UserID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(a)
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
