package composer

import "sync"

// Sessions hands out one composer per user.
type Sessions struct {
	deps *Deps

	mu     sync.Mutex
	byUser map[string]*Composer
}

func NewSessions(deps *Deps) *Sessions {
	return &Sessions{deps: deps, byUser: make(map[string]*Composer)}
}

// For returns the user's composer, creating an idle one on first use.
func (s *Sessions) For(userID string) *Composer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byUser[userID]
	if !ok {
		c = New(s.deps, userID)
		s.byUser[userID] = c
	}
	return c
}

// Drop forgets the user's draft, e.g. on sign-out.
func (s *Sessions) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}
