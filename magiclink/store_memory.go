package magiclink

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore is an in-memory Store for tests and single-instance
// development deployments.
type MemoryStore struct {
	mu    sync.Mutex
	links map[string]*Link
}

// NewMemoryStore creates an empty in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]*Link)}
}

func (s *MemoryStore) Create(_ context.Context, link *Link) error {
	if link.ID == "" {
		return errors.New("[MemoryStore.Create] link ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.ID]; exists {
		return errors.New("[MemoryStore.Create] duplicate link ID")
	}
	stored := *link
	s.links[link.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return nil, nil
	}
	out := *link
	return &out, nil
}

func (s *MemoryStore) MarkRedeemed(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return false, nil
	}
	if link.RedeemedAt != nil {
		return false, nil
	}
	link.RedeemedAt = &at
	return true, nil
}
