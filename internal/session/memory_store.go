package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and single-node setups.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// NewMemoryStoreAt pins the store's clock, for deterministic tests.
func NewMemoryStoreAt(now func() time.Time) *MemoryStore {
	s := NewMemoryStore()
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, userID, walletAddress string, ttl time.Duration) (Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(walletAddress) == "" {
		return Session{}, fmt.Errorf("%w: empty user id or wallet address", ErrInvalidConfig)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		Token:         token,
		UserID:        userID,
		WalletAddress: walletAddress,
		ExpiresAt:     s.now().UTC().Add(ttl),
	}
	s.mu.Lock()
	s.pruneExpired()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Session, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !now.Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) pruneExpired() {
	now := s.now().UTC()
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
