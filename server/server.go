package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edustack/go-access-server/access"
	"github.com/edustack/go-access-server/audit"
	"github.com/edustack/go-access-server/identity"
	"github.com/edustack/go-access-server/internal/config"
	"github.com/edustack/go-access-server/magiclink"
	"github.com/edustack/go-access-server/ratelimit"
	"github.com/edustack/go-access-server/sessions"
	"github.com/pkg/errors"
)

type Server struct {
	env      string // Environment (e.g. "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	resolver *access.Resolver
	sessions sessions.Store
	links    *magiclink.Service
	sso      identity.SSOFlow // nil when SSO is not configured
	limiter  *ratelimit.Limiter
	audit    audit.Sink
	logger   zerolog.Logger
}

func New(config config.Config, resolver *access.Resolver, sessionStore sessions.Store, links *magiclink.Service, sso identity.SSOFlow, limiter *ratelimit.Limiter, sink audit.Sink, logger zerolog.Logger) (*Server, error) {
	if resolver == nil {
		return nil, errors.New("[Server New] resolver is required")
	}
	if sessionStore == nil {
		return nil, errors.New("[Server New] session store is required")
	}
	if links == nil {
		return nil, errors.New("[Server New] magic link service is required")
	}
	if limiter == nil {
		return nil, errors.New("[Server New] rate limiter is required")
	}
	if sink == nil {
		sink = audit.NopSink{}
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   config,
		resolver: resolver,
		sessions: sessionStore,
		links:    links,
		sso:      sso,
		limiter:  limiter,
		audit:    sink,
		logger:   logger,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Info().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			s.logger.Info().Str("path", parts[0]).Msg("route")
		}
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
