package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edustack/go-access-server/access"
	"github.com/edustack/go-access-server/audit"
	"github.com/edustack/go-access-server/identity"
	"github.com/edustack/go-access-server/internal/config"
	"github.com/edustack/go-access-server/magiclink"
	"github.com/edustack/go-access-server/ratelimit"
	"github.com/edustack/go-access-server/server"
	"github.com/edustack/go-access-server/sessions"
	"github.com/edustack/go-access-server/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := log.With().Str("app", c.GetAppName()).Logger()
	if c.GetEnv() == "DEV" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	ctx := context.Background()

	sessionStore, linkStore, cleanup, err := newStores(ctx, c, logger)
	if err != nil {
		return fmt.Errorf("newStores: %w", err)
	}
	defer cleanup()

	links, err := magiclink.NewService(linkStore)
	if err != nil {
		return fmt.Errorf("magiclink.NewService: %w", err)
	}

	limiter, err := newLimiter(c, logger)
	if err != nil {
		return fmt.Errorf("newLimiter: %w", err)
	}

	oidcVerifier, err := newSSOVerifier(ctx, c, logger)
	if err != nil {
		return fmt.Errorf("newSSOVerifier: %w", err)
	}

	resolver, err := newResolver(c, sessionStore, links, oidcVerifier, logger)
	if err != nil {
		return fmt.Errorf("newResolver: %w", err)
	}

	// Assigning a nil *OIDCVerifier directly would make the interface
	// non-nil.
	var ssoFlow identity.SSOFlow
	if oidcVerifier != nil {
		ssoFlow = oidcVerifier
	}

	srv, err := server.New(c, resolver, sessionStore, links, ssoFlow, limiter, audit.NewLogSink(logger), logger)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// newStores wires either the Postgres-backed stores or the in-memory ones.
// Production requires a database; the in-memory stores lose everything on
// restart and exist for development only.
func newStores(ctx context.Context, c config.Config, logger zerolog.Logger) (sessions.Store, magiclink.Store, func(), error) {
	databaseURL := c.GetDatabaseURL()
	if databaseURL == "" {
		if c.GetEnv() == "PROD" {
			return nil, nil, nil, errors.New("DATABASE_URL is required in production")
		}
		logger.Warn().Msg("no database configured, using in-memory stores")
		return sessions.NewMemoryStore(), magiclink.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("database ping: %w", err)
	}

	return sessions.NewPostgresStore(pool), magiclink.NewPostgresStore(pool), pool.Close, nil
}

// newLimiter builds the shared rate limiter. Without a Redis backend the
// limiter fails closed in production; elsewhere it degrades to a
// process-local counter so development works without infrastructure.
func newLimiter(c config.Config, logger zerolog.Logger) (*ratelimit.Limiter, error) {
	cfg := ratelimit.Config{
		KeyPrefix: c.GetRateLimitKeyPrefix(),
		Limit:     int(c.GetRateLimit()),
		Window:    c.GetRateLimitWindow(),
	}

	redisURL := c.GetRedisURL()
	if redisURL == "" {
		if c.GetEnv() == "PROD" {
			return nil, errors.New("REDIS_URL is required in production")
		}
		logger.Warn().Msg("no redis configured, rate limiting with process-local counters")
		return ratelimit.NewLimiter(cfg, ratelimit.NewLocalStore(), ratelimit.WithLogger(logger)), nil
	}

	store, err := ratelimit.NewRedisStoreFromURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ratelimit.NewRedisStoreFromURL: %w", err)
	}

	options := []ratelimit.LimiterOption{ratelimit.WithLogger(logger)}
	if c.GetEnv() != "PROD" {
		// Outside production an unreachable Redis degrades to local
		// counting instead of refusing requests.
		options = append(options, ratelimit.WithFallback(ratelimit.NewLocalStore()))
	}
	return ratelimit.NewLimiter(cfg, store, options...), nil
}

// newSSOVerifier discovers the OIDC provider when one is configured; nil
// means SSO is off and only magic links are accepted.
func newSSOVerifier(ctx context.Context, c config.Config, logger zerolog.Logger) (*identity.OIDCVerifier, error) {
	if c.GetSSOIssuerURL() == "" {
		logger.Warn().Msg("no SSO issuer configured, only magic links are accepted")
		return nil, nil
	}
	v, err := identity.NewOIDCVerifier(ctx, c.GetSSOIssuerURL(), c.GetSSOClientID(), c.GetSSOClientSecret(), c.GetSSORedirectURL())
	if err != nil {
		return nil, fmt.Errorf("identity.NewOIDCVerifier: %w", err)
	}
	return v, nil
}

func newResolver(c config.Config, sessionStore sessions.Store, links *magiclink.Service, oidcVerifier *identity.OIDCVerifier, logger zerolog.Logger) (*access.Resolver, error) {
	secret := c.GetTokenSecret()
	if secret == "" {
		return nil, errors.New("TOKEN_SECRET is required")
	}
	salt := c.GetPinSalt()
	if salt == "" {
		return nil, errors.New("PIN_SALT is required")
	}

	var verifier identity.Verifier
	if oidcVerifier != nil {
		verifier = oidcVerifier
	}

	return access.NewResolver(access.Deps{
		Sessions: sessionStore,
		Links:    links,
		Identity: verifier,
		Codec:    token.NewCodec(secret, c.GetTokenTTL()),
		Audit:    audit.NewLogSink(logger),
	}, sessions.NewPinningGuard(sessionStore, salt), c.GetContentBaseURL())
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
