package sessions

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var SessionNotFoundErr = errors.New("session not found")

// Store persists Session records with a uniqueness constraint on
// (EnrollmentID, ContentType).
type Store interface {
	// FindOrCreate returns the session for the pair, creating it when
	// absent. Concurrent callers for the same pair all receive the same
	// record.
	FindOrCreate(ctx context.Context, enrollmentID string, contentType ContentType) (*Session, error)

	// Get returns the session by ID, or SessionNotFoundErr.
	Get(ctx context.Context, id string) (*Session, error)

	// Pin atomically sets the pin fields if and only if they are still
	// unset. It returns false when another writer already pinned the
	// session; the caller must re-read and compare.
	Pin(ctx context.Context, id, ipHash, userAgent string, at time.Time) (bool, error)

	// UpdateStatus records a new session status from a progress event.
	UpdateStatus(ctx context.Context, id, status string) error
}
