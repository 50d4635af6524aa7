package dispatch

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/cab-pooling/internal/models"
)

var ErrNoSession = errors.New("no websocket session for cab")

// WSSession represents a connected driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(u models.PoolUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(u)
}

// WSRegistry holds driver sessions keyed by cab ID.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

func (r *WSRegistry) Add(cabID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cabID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(cabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cabID)
}

func (r *WSRegistry) PoolUpdate(cabID string, u models.PoolUpdate) error {
	r.mu.RLock()
	s, ok := r.sessions[cabID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(u); err != nil {
		if r.logger != nil {
			r.logger.Warn("ws send error", "cab_id", cabID, "error", err)
		}
		return err
	}
	return nil
}
