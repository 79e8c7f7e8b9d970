// Package audit delivers security-relevant denials to an audit sink as
// fire-and-forget events. Recording never blocks or fails the request
// that triggered it.
package audit

import (
	"time"

	"github.com/rs/zerolog"
)

// Actions recorded by this core.
const (
	ActionPinMismatch        = "pin.mismatch"
	ActionRateLimitExhausted = "ratelimit.exhausted"
	ActionLinkRejected       = "link.rejected"
)

// Event is one security-relevant denial.
type Event struct {
	Action       string
	EnrollmentID string
	ClientIP     string
	Detail       string
	At           time.Time
}

// Sink receives events. Implementations must not block the caller.
type Sink interface {
	Record(e Event)
}

// LogSink writes events as structured log entries.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(e Event) {
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.logger.Warn().
		Str("action", e.Action).
		Str("enrollment_id", e.EnrollmentID).
		Str("client_ip", e.ClientIP).
		Str("detail", e.Detail).
		Time("at", at).
		Msg("security denial")
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Record(Event) {}
