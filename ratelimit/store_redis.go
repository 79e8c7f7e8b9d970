package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore counts against a shared Redis instance, making the window
// authoritative across all process instances. The read-check-increment is
// a single atomic INCR; the key's TTL carries the window reset.
type RedisStore struct {
	client  redis.Cmdable
	nowTime func() time.Time
}

// RedisStoreOption modifies a RedisStore instance.
type RedisStoreOption func(*RedisStore)

// WithRedisNowTime sets the now time function (primarily for testing)
func WithRedisNowTime(nowFunc func() time.Time) RedisStoreOption {
	return func(s *RedisStore) {
		s.nowTime = nowFunc
	}
}

// NewRedisStore creates a RedisStore over an existing client.
func NewRedisStore(client redis.Cmdable, options ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// NewRedisStoreFromURL creates a RedisStore from a Redis URL.
func NewRedisStoreFromURL(url string, options ...RedisStoreOption) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[NewRedisStoreFromURL] redis.ParseURL")
	}
	return NewRedisStore(redis.NewClient(opts), options...), nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// ExpireNX arms the TTL only on the increment that opened the window,
	// so the reset time is fixed at the window start.
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, errors.Wrap(err, "[RedisStore.Incr] pipeline")
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), s.nowTime().Add(remaining), nil
}
