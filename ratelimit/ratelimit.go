// Package ratelimit implements fixed-window request counting with a
// shared-counter backend and a process-local fallback. Both backends run
// the same window algorithm; only the scope of the counter differs.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// BackendUnavailableErr reports that the shared counter store could not be
// reached. Production callers must fail closed on it.
var BackendUnavailableErr = errors.New("rate limit backend unavailable")

// Config describes one limited surface.
type Config struct {
	KeyPrefix string
	Limit     int
	Window    time.Duration // defaults to one minute
}

// Result is returned for every metered request, allowed or not.
type Result struct {
	OK         bool
	Limit      int
	Remaining  int
	Reset      int64 // window reset, epoch milliseconds
	RetryAfter int   // whole seconds until the window resets; 0 when allowed
}

// Store increments the counter for key within the current fixed window,
// starting a new window when none is active, and reports the count after
// the increment together with the window reset time. The increment must be
// atomic: concurrent callers may over-count by one but never under-count.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Limiter applies a fixed-window limit using a Store. When a fallback
// store is configured, backend failures degrade to it with a warning;
// without one they surface as BackendUnavailableErr.
type Limiter struct {
	cfg      Config
	store    Store
	fallback Store
	logger   zerolog.Logger
	nowTime  func() time.Time
}

// LimiterOption modifies a Limiter instance.
type LimiterOption func(*Limiter)

// WithFallback degrades to the given store when the primary is
// unreachable. Only non-production deployments should set this.
func WithFallback(store Store) LimiterOption {
	return func(l *Limiter) {
		l.fallback = store
	}
}

// WithLogger sets the logger used for degradation warnings.
func WithLogger(logger zerolog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.nowTime = nowFunc
	}
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(cfg Config, store Store, options ...LimiterOption) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		store:   store,
		logger:  zerolog.Nop(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Allow meters one request. The key is composed from the configured
// prefix, the request method and the client IP.
func (l *Limiter) Allow(ctx context.Context, method, clientIP string) (Result, error) {
	key := l.cfg.KeyPrefix + method + clientIP

	count, resetAt, err := l.store.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		if l.fallback == nil {
			return Result{}, errors.Wrap(BackendUnavailableErr, err.Error())
		}
		l.logger.Warn().Err(err).Str("key", key).Msg("rate limit backend unreachable, degrading to local counter")
		count, resetAt, err = l.fallback.Incr(ctx, key, l.cfg.Window)
		if err != nil {
			return Result{}, errors.Wrap(BackendUnavailableErr, err.Error())
		}
	}

	res := Result{
		Limit:     l.cfg.Limit,
		Remaining: l.cfg.Limit - int(count),
		Reset:     resetAt.UnixMilli(),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}

	if count > int64(l.cfg.Limit) {
		res.RetryAfter = retryAfterSeconds(l.nowTime(), resetAt)
		return res, nil
	}

	res.OK = true
	return res, nil
}

// retryAfterSeconds rounds the remaining window up to whole seconds so a
// client honoring the hint never retries inside the same window.
func retryAfterSeconds(now, resetAt time.Time) int {
	remaining := resetAt.Sub(now)
	if remaining <= 0 {
		return 1
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ClientIP extracts the client address for key composition: the first
// entry of the forwarded-for header, else "unknown".
func ClientIP(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return "unknown"
	}
	first := strings.TrimSpace(strings.Split(fwd, ",")[0])
	if first == "" {
		return "unknown"
	}
	return first
}
