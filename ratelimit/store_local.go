package ratelimit

import (
	"context"
	"sync"
	"time"
)

// pruneThreshold bounds the bucket map; expired entries are swept lazily
// once the map grows past it.
const pruneThreshold = 1024

type bucket struct {
	count   int64
	resetAt time.Time
}

// LocalStore is a process-local counter map. It is safe for concurrent use
// within one process and explicitly not safe across instances: two
// replicas each admit their own full window.
type LocalStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	nowTime func() time.Time
}

// LocalStoreOption modifies a LocalStore instance.
type LocalStoreOption func(*LocalStore)

// WithLocalNowTime sets the now time function (primarily for testing)
func WithLocalNowTime(nowFunc func() time.Time) LocalStoreOption {
	return func(s *LocalStore) {
		s.nowTime = nowFunc
	}
}

// NewLocalStore creates an empty in-process counter store.
func NewLocalStore(options ...LocalStoreOption) *LocalStore {
	s := &LocalStore{
		buckets: make(map[string]*bucket),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *LocalStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowTime()

	b, ok := s.buckets[key]
	if !ok || now.After(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		s.buckets[key] = b
	}
	b.count++

	if len(s.buckets) > pruneThreshold {
		s.prune(now)
	}

	return b.count, b.resetAt, nil
}

// prune removes expired buckets. Caller holds the lock.
func (s *LocalStore) prune(now time.Time) {
	for key, b := range s.buckets {
		if now.After(b.resetAt) {
			delete(s.buckets, key)
		}
	}
}
