package sessions

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"

	"github.com/edustack/go-access-server/token"
)

// FingerprintMismatchErr is fatal for the session: the request came from
// a different device than the one that first redeemed the magic link. It
// is never retried; the holder needs a fresh link or administrator action.
var FingerprintMismatchErr = errors.New("session fingerprint mismatch")

// PinningGuard binds magic-link sessions to the first device that redeems
// them. Magic links are bearer credentials mailed in the clear; pinning
// turns "possession of the link" into "possession of the link on the
// original device". SSO sessions are never pinned and never checked: the
// SSO identity already authenticates the request and device changes are
// expected.
type PinningGuard struct {
	store   Store
	salt    []byte
	nowTime func() time.Time
}

// PinningGuardOption modifies a PinningGuard instance.
type PinningGuardOption func(*PinningGuard)

// WithPinNowTime sets the now time function (primarily for testing)
func WithPinNowTime(nowFunc func() time.Time) PinningGuardOption {
	return func(g *PinningGuard) {
		g.nowTime = nowFunc
	}
}

// NewPinningGuard creates a guard over the session store. The salt keys
// the device fingerprint so stored hashes cannot be matched against raw
// address lists.
func NewPinningGuard(store Store, salt string, options ...PinningGuardOption) *PinningGuard {
	g := &PinningGuard{
		store:   store,
		salt:    []byte(salt),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Fingerprint computes the salted device fingerprint for a client IP and
// raw user-agent string.
func (g *PinningGuard) Fingerprint(clientIP, userAgent string) string {
	h := sha256.New()
	h.Write(g.salt)
	h.Write([]byte(clientIP))
	h.Write([]byte(userAgent))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Check enforces device binding for sess. The first magic-link access
// pins the session via the store's atomic set-if-null write; every later
// access must present the same fingerprint. Any mismatch, and any store
// failure, denies the request.
func (g *PinningGuard) Check(ctx context.Context, sess *Session, method token.AuthMethod, clientIP, userAgent string) error {
	if method != token.AuthMethodMagicLink {
		return nil
	}

	fingerprint := g.Fingerprint(clientIP, userAgent)

	if !sess.Pinned() {
		now := g.nowTime().UTC()
		won, err := g.store.Pin(ctx, sess.ID, fingerprint, userAgent, now)
		if err != nil {
			return errors.Wrap(err, "[PinningGuard.Check] pin")
		}
		if won {
			sess.PinnedIPHash = &fingerprint
			sess.PinnedUserAgent = &userAgent
			sess.PinnedAt = &now
			return nil
		}

		// Lost a concurrent first access; re-read the winner's pin and
		// fall through to the comparison.
		current, err := g.store.Get(ctx, sess.ID)
		if err != nil {
			return errors.Wrap(err, "[PinningGuard.Check] re-read after pin race")
		}
		if !current.Pinned() {
			return FingerprintMismatchErr
		}
		*sess = *current
	}

	if subtle.ConstantTimeCompare([]byte(*sess.PinnedIPHash), []byte(fingerprint)) != 1 {
		return FingerprintMismatchErr
	}
	if sess.PinnedUserAgent != nil && *sess.PinnedUserAgent != userAgent {
		return FingerprintMismatchErr
	}
	return nil
}
