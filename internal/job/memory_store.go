package job

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]Job),
		now:  time.Now,
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

func (s *MemoryStore) Create(_ context.Context, j Job) (Job, error) {
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	if strings.TrimSpace(j.ID) == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now().UTC()
	}
	j.Source = SourceLive
	j.Highlighted = false

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return Job{}, fmt.Errorf("job/memory: duplicate id %q", j.ID)
	}
	s.jobs[j.ID] = cloneJob(j)
	return j, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Job, error) {
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if j.UserID != userID {
		return ErrNotOwner
	}
	delete(s.jobs, id)
	return nil
}

func cloneJob(j Job) Job {
	out := j
	if j.Locations != nil {
		out.Locations = append([]string(nil), j.Locations...)
	}
	if j.Comp != nil {
		comp := *j.Comp
		out.Comp = &comp
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
