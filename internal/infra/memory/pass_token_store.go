package memory

import (
	"context"
	"sync"
	"time"

	"anniv-certificate-service/internal/domain"
)

// PassTokenStore is an in-memory implementation of app.PassTokenStore.
type PassTokenStore struct {
	mu     sync.RWMutex
	clock  func() time.Time
	tokens map[string]storedToken
}

type storedToken struct {
	token     domain.PassToken
	expiresAt time.Time
}

func NewPassTokenStore() *PassTokenStore {
	return &PassTokenStore{
		clock:  time.Now,
		tokens: make(map[string]storedToken),
	}
}

func (s *PassTokenStore) Save(_ context.Context, token domain.PassToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	s.pruneLocked(now)
	entry := storedToken{token: token}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	s.tokens[token.Token] = entry
	return nil
}

func (s *PassTokenStore) Lookup(_ context.Context, token string) (domain.PassToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.tokens[token]
	if !ok || entry.expired(s.clock()) {
		return domain.PassToken{}, domain.ErrPassTokenInvalid
	}
	return entry.token, nil
}

// Len reports the number of live tokens.
func (s *PassTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock())
	return len(s.tokens)
}

func (s *PassTokenStore) pruneLocked(now time.Time) {
	for k, entry := range s.tokens {
		if entry.expired(now) {
			delete(s.tokens, k)
		}
	}
}

func (e storedToken) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
