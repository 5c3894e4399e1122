// Package memory keeps sessions in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kirillkom/campus-assistant/internal/core/domain"
)

// SessionStore hands out copies so callers never share history slices.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", errors.New(id))
	}
	return session.Clone(), nil
}

func (s *SessionStore) Save(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "save session", errors.New(session.ID))
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}
