package domain

import (
	"sync"
	"time"
)

// Session is the per-connection state: the bound user, if any.
type Session struct {
	ID           string
	userID       string
	CreatedAt    time.Time
	LastActiveAt time.Time
	mu           sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Bind sets the user and returns the previously bound one.
func (s *Session) Bind(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.userID
	s.userID = userID
	s.LastActiveAt = time.Now()
	return prev
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID != ""
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
