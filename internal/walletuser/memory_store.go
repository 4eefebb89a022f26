package walletuser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]User
	byAddress map[string]string

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]User),
		byAddress: make(map[string]string),
		now:       time.Now,
	}
}

func (s *MemoryStore) Register(_ context.Context, address string) (User, bool, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return User{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAddress[address]; ok {
		return s.byID[id], false, nil
	}
	u := User{
		ID:            uuid.NewString(),
		WalletAddress: address,
		CreatedAt:     s.now().UTC(),
	}
	s.byID[u.ID] = u
	s.byAddress[address] = u.ID
	return u, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	u, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetByAddress(_ context.Context, address string) (User, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return User{}, err
	}
	s.mu.RLock()
	id, ok := s.byAddress[address]
	var u User
	if ok {
		u = s.byID[id]
	}
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

var _ Store = (*MemoryStore)(nil)
