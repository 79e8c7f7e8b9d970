// Package access orchestrates a learner's content-access request: rate
// limiting runs in front of it, then authentication, session lookup,
// device binding and token issuance happen here.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/edustack/go-access-server/audit"
	"github.com/edustack/go-access-server/identity"
	"github.com/edustack/go-access-server/magiclink"
	"github.com/edustack/go-access-server/sessions"
	"github.com/edustack/go-access-server/token"
)

// AuthRequiredErr covers every authentication failure. Missing, forged,
// malformed and expired credentials all look the same to the caller,
// who is simply sent back to login.
var AuthRequiredErr = errors.New("authentication required")

// Request is one content-access attempt. Exactly one of SSOIDToken,
// MagicLink or AccessToken authenticates it.
type Request struct {
	EnrollmentID string
	ContentType  sessions.ContentType
	CourseID     string
	ClientIP     string
	UserAgent    string

	SSOIDToken  string // raw OIDC ID token from the identity provider
	MagicLink   string // raw "linkID.secret" credential from an emailed URL
	AccessToken string // previously issued access token, usually from the cookie
}

// Grant is a successful resolution: a fresh token to set as a cookie and
// the launch details for the content player.
type Grant struct {
	Token       string
	TTL         time.Duration
	Subject     string
	AuthMethod  token.AuthMethod
	ContentURL  string
	ContentType sessions.ContentType
	Session     *sessions.Session
}

// Deps holds all collaborator dependencies for the Resolver.
type Deps struct {
	Sessions sessions.Store
	Links    *magiclink.Service
	Identity identity.Verifier // nil when SSO is not configured
	Codec    *token.Codec
	Audit    audit.Sink
}

// Resolver is the top-level orchestrator for content access.
type Resolver struct {
	deps           Deps
	guard          *sessions.PinningGuard
	contentBaseURL string
	nowTime        func() time.Time
}

// ResolverOption modifies a Resolver instance.
type ResolverOption func(*Resolver)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowTime = nowFunc
	}
}

// NewResolver initializes a Resolver with required dependencies.
func NewResolver(deps Deps, guard *sessions.PinningGuard, contentBaseURL string, options ...ResolverOption) (*Resolver, error) {
	if deps.Sessions == nil {
		return nil, errors.New("[NewResolver] Sessions store is required")
	}
	if deps.Links == nil {
		return nil, errors.New("[NewResolver] Links service is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("[NewResolver] Codec is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("[NewResolver] Audit sink is required")
	}
	if guard == nil {
		return nil, errors.New("[NewResolver] PinningGuard is required")
	}

	r := &Resolver{
		deps:           deps,
		guard:          guard,
		contentBaseURL: strings.TrimRight(contentBaseURL, "/"),
		nowTime:        time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve runs the full orchestration for a content-access request and
// returns a Grant carrying a freshly minted token.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Grant, error) {
	subject, method, err := r.authenticate(ctx, &req)
	if err != nil {
		return nil, err
	}

	if req.EnrollmentID == "" {
		return nil, errors.New("[Resolver.Resolve] enrollment ID is required")
	}
	if !req.ContentType.Valid() {
		return nil, errors.Errorf("[Resolver.Resolve] unknown content type %q", req.ContentType)
	}

	sess, err := r.deps.Sessions.FindOrCreate(ctx, req.EnrollmentID, req.ContentType)
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.Resolve] FindOrCreate")
	}

	if err := r.guard.Check(ctx, sess, method, req.ClientIP, req.UserAgent); err != nil {
		if errors.Is(err, sessions.FingerprintMismatchErr) {
			r.deps.Audit.Record(audit.Event{
				Action:       audit.ActionPinMismatch,
				EnrollmentID: req.EnrollmentID,
				ClientIP:     req.ClientIP,
				At:           r.nowTime().UTC(),
			})
		}
		return nil, err
	}

	signed, err := r.deps.Codec.Sign(token.Claims{
		Subject:    subject,
		AuthMethod: method,
		CourseID:   req.CourseID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Resolver.Resolve] Sign")
	}

	return &Grant{
		Token:       signed,
		TTL:         r.deps.Codec.TTL(),
		Subject:     subject,
		AuthMethod:  method,
		ContentURL:  r.contentURL(req.ContentType, req.EnrollmentID),
		ContentType: req.ContentType,
		Session:     sess,
	}, nil
}

// VerifyAccess authenticates an already-issued access token for an
// enrollment and enforces device binding for its session. Progress
// commits use it for every write.
func (r *Resolver) VerifyAccess(ctx context.Context, rawToken, enrollmentID string, contentType sessions.ContentType, clientIP, userAgent string) (*token.Claims, *sessions.Session, error) {
	claims, err := r.deps.Codec.Verify(rawToken)
	if err != nil {
		if token.IsVerificationError(err) {
			return nil, nil, AuthRequiredErr
		}
		return nil, nil, errors.Wrap(err, "[Resolver.VerifyAccess] Verify")
	}

	sess, err := r.deps.Sessions.FindOrCreate(ctx, enrollmentID, contentType)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[Resolver.VerifyAccess] FindOrCreate")
	}

	if err := r.guard.Check(ctx, sess, claims.AuthMethod, clientIP, userAgent); err != nil {
		if errors.Is(err, sessions.FingerprintMismatchErr) {
			r.deps.Audit.Record(audit.Event{
				Action:       audit.ActionPinMismatch,
				EnrollmentID: enrollmentID,
				ClientIP:     clientIP,
				At:           r.nowTime().UTC(),
			})
		}
		return nil, nil, err
	}

	return claims, sess, nil
}

// authenticate establishes who is asking. A magic link overrides the
// request's enrollment and course scope with the link's own.
func (r *Resolver) authenticate(ctx context.Context, req *Request) (string, token.AuthMethod, error) {
	switch {
	case req.SSOIDToken != "":
		if r.deps.Identity == nil {
			return "", "", AuthRequiredErr
		}
		id, err := r.deps.Identity.VerifySSO(ctx, req.SSOIDToken)
		if err != nil {
			return "", "", AuthRequiredErr
		}
		return id.Subject, token.AuthMethodSSO, nil

	case req.MagicLink != "":
		redemption, err := r.deps.Links.Redeem(ctx, req.MagicLink)
		if err != nil {
			if errors.Is(err, magiclink.LinkInvalidErr) {
				r.deps.Audit.Record(audit.Event{
					Action:   audit.ActionLinkRejected,
					ClientIP: req.ClientIP,
					At:       r.nowTime().UTC(),
				})
				return "", "", err
			}
			return "", "", errors.Wrap(err, "[Resolver.authenticate] Redeem")
		}
		req.EnrollmentID = redemption.EnrollmentID
		req.CourseID = redemption.CourseID
		return redemption.UserID, token.AuthMethodMagicLink, nil

	case req.AccessToken != "":
		claims, err := r.deps.Codec.Verify(req.AccessToken)
		if err != nil {
			if token.IsVerificationError(err) {
				return "", "", AuthRequiredErr
			}
			return "", "", errors.Wrap(err, "[Resolver.authenticate] Verify")
		}
		if claims.CourseID != "" && req.CourseID == "" {
			req.CourseID = claims.CourseID
		}
		return claims.Subject, claims.AuthMethod, nil

	default:
		return "", "", AuthRequiredErr
	}
}

func (r *Resolver) contentURL(contentType sessions.ContentType, enrollmentID string) string {
	return fmt.Sprintf("%s/launch/%s/%s", r.contentBaseURL, contentType, enrollmentID)
}
