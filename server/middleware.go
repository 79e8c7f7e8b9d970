package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/edustack/go-access-server/audit"
	"github.com/edustack/go-access-server/ratelimit"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) APIMiddleware() []func(http.HandlerFunc) http.HandlerFunc {
	return []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.RateLimitMiddleware,
	}
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.env != "DEV" {
			next(w, r)
			return
		}
		start := time.Now()
		next(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("clientIp", ratelimit.ClientIP(r)).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				http.Redirect(w, r, RouteError, http.StatusSeeOther)
			}
		}()
		next(w, r)
	}
}

// RateLimitMiddleware enforces the per-client fixed-window limit. Exhausted
// clients get 429 with Retry-After; an unreachable backend without a
// fallback gets 503 rather than an unmetered pass.
func (s *Server) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := ratelimit.ClientIP(r)

		result, err := s.limiter.Allow(r.Context(), r.Method, clientIP)
		if err != nil {
			if errors.Is(err, ratelimit.BackendUnavailableErr) {
				writeJSONError(w, "service_unavailable", "Rate limiting backend unavailable", http.StatusServiceUnavailable)
				return
			}
			s.logger.Error().Err(err).Msg("rate limit check failed")
			writeJSONError(w, "server_error", "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

		if !result.OK {
			s.audit.Record(audit.Event{
				Action:   audit.ActionRateLimitExhausted,
				ClientIP: clientIP,
				Detail:   r.Method + " " + r.URL.Path,
				At:       time.Now().UTC(),
			})
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			writeJSONError(w, "rate_limited", "Too many requests", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}
