// Package sessions holds the content-session records that tie an
// enrollment to a piece of launched content, and the device-binding guard
// for magic-link sessions.
package sessions

import "time"

// ContentType identifies the content runtime a session belongs to.
type ContentType string

const (
	ContentTypeScorm ContentType = "scorm"
	ContentTypeH5P   ContentType = "h5p"
)

// Valid reports whether ct is a known content type.
func (ct ContentType) Valid() bool {
	return ct == ContentTypeScorm || ct == ContentTypeH5P
}

// Session statuses, updated by content progress events.
const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Session is keyed uniquely by (EnrollmentID, ContentType). It is created
// on the first content-access attempt and never deleted by this core; the
// enrollment store owns its lifecycle.
//
// The pin fields are written at most once, only for magic-link sessions,
// and are immutable afterwards. SSO sessions are never pinned.
type Session struct {
	ID              string
	EnrollmentID    string
	ContentType     ContentType
	Status          string
	PinnedIPHash    *string
	PinnedUserAgent *string
	PinnedAt        *time.Time
	CreatedAt       time.Time
}

// Pinned reports whether the session has been bound to a device.
func (s *Session) Pinned() bool {
	return s.PinnedIPHash != nil
}
