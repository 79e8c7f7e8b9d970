// Package magiclink mints and redeems the single-use emailed links that
// authenticate learners without a password. Delivery of the email is an
// external concern; this package owns the credential lifecycle.
package magiclink

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// LinkInvalidErr covers every redemption failure (unknown, expired,
// already redeemed, wrong secret) so a caller probing links learns
// nothing about why one was rejected.
var LinkInvalidErr = errors.New("magic link invalid")

// Link is the stored issuance record. The secret itself is never stored,
// only its bcrypt hash.
type Link struct {
	ID           string
	UserID       string
	EnrollmentID string
	CourseID     string
	SecretHash   []byte
	ExpiresAt    time.Time
	RedeemedAt   *time.Time
	CreatedAt    time.Time
}

// Store persists link records.
type Store interface {
	// Create stores a new link record.
	Create(ctx context.Context, link *Link) error

	// Get returns the link by ID, or nil when unknown.
	Get(ctx context.Context, id string) (*Link, error)

	// MarkRedeemed atomically stamps the redemption time if and only if
	// the link has not been redeemed. It returns false when another
	// redemption already won.
	MarkRedeemed(ctx context.Context, id string, at time.Time) (bool, error)
}
