package magiclink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const secretLength = 32

// Redemption is the identity a successfully redeemed link vouches for.
type Redemption struct {
	UserID       string
	EnrollmentID string
	CourseID     string
}

// Service issues and redeems magic links.
type Service struct {
	store   Store
	nowTime func() time.Time
}

// ServiceOption modifies a Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService creates a Service over the given store.
func NewService(store Store, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] link store is required")
	}
	s := &Service{
		store:   store,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Issue mints a new link credential of the form "linkID.secret" for the
// given learner and enrollment. Only the bcrypt hash of the secret is
// stored; the returned credential is the single copy.
func (s *Service) Issue(ctx context.Context, userID, enrollmentID, courseID string, ttl time.Duration) (string, error) {
	if userID == "" || enrollmentID == "" {
		return "", errors.New("[Service.Issue] userID and enrollmentID are required")
	}
	if ttl <= 0 {
		return "", errors.New("[Service.Issue] ttl must be positive")
	}

	secretBytes := make([]byte, secretLength)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", errors.Wrap(err, "[Service.Issue] rand.Read")
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "[Service.Issue] bcrypt.GenerateFromPassword")
	}

	now := s.nowTime().UTC()
	link := &Link{
		ID:           uuid.New().String(),
		UserID:       userID,
		EnrollmentID: enrollmentID,
		CourseID:     courseID,
		SecretHash:   hash,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, link); err != nil {
		return "", errors.Wrap(err, "[Service.Issue] store.Create")
	}

	return link.ID + "." + secret, nil
}

// Redeem burns a link credential and returns the identity it vouches for.
// A link redeems exactly once: the mark-redeemed write is atomic, so a
// concurrent second redemption loses and is rejected.
func (s *Service) Redeem(ctx context.Context, raw string) (*Redemption, error) {
	id, secret, ok := strings.Cut(raw, ".")
	if !ok || id == "" || secret == "" {
		return nil, LinkInvalidErr
	}

	link, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Redeem] store.Get")
	}
	if link == nil || link.RedeemedAt != nil {
		return nil, LinkInvalidErr
	}

	now := s.nowTime()
	if now.After(link.ExpiresAt) {
		return nil, LinkInvalidErr
	}

	if bcrypt.CompareHashAndPassword(link.SecretHash, []byte(secret)) != nil {
		return nil, LinkInvalidErr
	}

	won, err := s.store.MarkRedeemed(ctx, link.ID, now.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Redeem] store.MarkRedeemed")
	}
	if !won {
		return nil, LinkInvalidErr
	}

	return &Redemption{
		UserID:       link.UserID,
		EnrollmentID: link.EnrollmentID,
		CourseID:     link.CourseID,
	}, nil
}
