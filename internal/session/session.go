package session

import (
	"errors"
	"sync"
)

// ErrNotAuthenticated is returned for any write attempted without an active
// session identity.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session holds the authenticated identity the daemon acts as. The identity
// is passed explicitly to every component that needs it rather than read from
// ambient global state.
type Session struct {
	mu     sync.RWMutex
	userID string
}

// New creates a session, optionally pre-authenticated with userID.
func New(userID string) *Session {
	return &Session{userID: userID}
}

// Login sets the active identity.
func (s *Session) Login(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// Logout clears the active identity.
func (s *Session) Logout() {
	s.mu.Lock()
	s.userID = ""
	s.mu.Unlock()
}

// UserID returns the active identity, or ErrNotAuthenticated when none is set.
func (s *Session) UserID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", ErrNotAuthenticated
	}
	return s.userID, nil
}

// Active reports whether an identity is set.
func (s *Session) Active() bool {
	_, err := s.UserID()
	return err == nil
}
