package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryStore is an in-memory Store for tests and single-instance
// development deployments.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Session
	byPair map[string]string // enrollmentID/contentType -> session ID
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Session),
		byPair: make(map[string]string),
	}
}

func pairKey(enrollmentID string, contentType ContentType) string {
	return enrollmentID + "/" + string(contentType)
}

func (s *MemoryStore) FindOrCreate(_ context.Context, enrollmentID string, contentType ContentType) (*Session, error) {
	if enrollmentID == "" {
		return nil, errors.New("[MemoryStore.FindOrCreate] enrollmentID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPair[pairKey(enrollmentID, contentType)]; ok {
		return copySession(s.byID[id]), nil
	}

	sess := &Session{
		ID:           uuid.New().String(),
		EnrollmentID: enrollmentID,
		ContentType:  contentType,
		Status:       StatusInProgress,
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[sess.ID] = sess
	s.byPair[pairKey(enrollmentID, contentType)] = sess.ID

	return copySession(sess), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return nil, SessionNotFoundErr
	}
	return copySession(sess), nil
}

func (s *MemoryStore) Pin(_ context.Context, id, ipHash, userAgent string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return false, SessionNotFoundErr
	}
	if sess.PinnedIPHash != nil {
		return false, nil
	}

	sess.PinnedIPHash = &ipHash
	sess.PinnedUserAgent = &userAgent
	sess.PinnedAt = &at
	return true, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return SessionNotFoundErr
	}
	sess.Status = status
	return nil
}

// copySession returns a detached copy so callers cannot mutate the stored
// record outside the lock.
func copySession(sess *Session) *Session {
	out := *sess
	return &out
}
