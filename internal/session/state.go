package session

import (
	"context"
	"sync"
)

// State holds the Moodle session security token ("sesskey") observed on the
// user's session. It has a single writer role (the capture observer) and
// multiple readers (bootstrapper, fetcher). A new observation always wins:
// Set overwrites whatever was there before.
type State struct {
	mu      sync.Mutex
	token   string
	waiters []chan string
}

// NewState returns an empty State with no token observed yet.
func NewState() *State {
	return &State{}
}

// Set publishes a newly observed token and unblocks every pending Await.
// Empty tokens are ignored.
func (s *State) Set(token string) {
	if token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	for _, w := range s.waiters {
		w <- token
	}
	s.waiters = nil
}

// Get returns the current token, or "" if none has been observed.
func (s *State) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Reset clears the token. Called when a bootstrap cycle restarts so that a
// stale value cannot satisfy the next acquisition.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Await blocks until a token is available or ctx is done. If a token is
// already set it returns immediately. Each call has a single resolution
// point: it either observes exactly one Set or the context error.
func (s *State) Await(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	w := make(chan string, 1)
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case token := <-w:
		return token, nil
	case <-ctx.Done():
		s.removeWaiter(w)
		return "", ctx.Err()
	}
}

func (s *State) removeWaiter(w chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, other := range s.waiters {
		if other == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}
