package config

import (
	"strconv"
	"time"
)

type RateLimitConfig interface {
	GetRedisURL() string
	GetRateLimit() int64
	GetRateLimitWindow() time.Duration
	GetRateLimitKeyPrefix() string
}

type RateLimit struct{}

var _ RateLimitConfig = RateLimit{}

// GetRedisURL returns the Redis connection URL for the shared rate-limit
// counters. Empty means no shared backend is configured.
func (RateLimit) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (RateLimit) GetRateLimit() int64 {
	raw := GetEnv("RATE_LIMIT", "")
	if raw == "" {
		return 60
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		return 60
	}
	return limit
}

func (RateLimit) GetRateLimitWindow() time.Duration {
	return durationEnv("RATE_LIMIT_WINDOW", time.Minute)
}

func (RateLimit) GetRateLimitKeyPrefix() string {
	return GetEnv("RATE_LIMIT_KEY_PREFIX", "access:rl:")
}
