package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// AuthMethod records how the bearer of a token originally authenticated.
type AuthMethod string

const (
	AuthMethodSSO       AuthMethod = "sso"
	AuthMethodMagicLink AuthMethod = "magic-link"
)

// Verification failures are deliberately coarse: callers surface all three
// to the client identically, so a caller never learns whether a guessed
// token was malformed, forged, or merely stale.
var (
	MalformedTokenErr = errors.New("malformed token")
	BadSignatureErr   = errors.New("bad signature")
	ExpiredTokenErr   = errors.New("expired token")
)

// Claims is the payload of an access token.
type Claims struct {
	Subject    string
	AuthMethod AuthMethod
	CourseID   string // empty when the token is not scoped to a course
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Codec signs and verifies compact HS256 claim tokens.
type Codec struct {
	secret  []byte
	ttl     time.Duration
	nowTime func() time.Time
}

// CodecOption modifies a Codec instance.
type CodecOption func(*Codec)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowTime = nowFunc
	}
}

// NewCodec creates a Codec that signs with secret and issues tokens valid
// for ttl.
func NewCodec(secret string, ttl time.Duration, options ...CodecOption) *Codec {
	c := &Codec{
		secret:  []byte(secret),
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// TTL returns the lifetime stamped into signed tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Sign creates a signed token for claims. IssuedAt and ExpiresAt are
// stamped by the codec; any values already present on claims are ignored.
func (c *Codec) Sign(claims Claims) (string, error) {
	now := c.nowTime()
	mapClaims := jwtlib.MapClaims{
		"sub":  claims.Subject,
		"auth": string(claims.AuthMethod),
		"iat":  now.Unix(),
		"exp":  now.Add(c.ttl).Unix(),
	}
	if claims.CourseID != "" {
		mapClaims["courseId"] = claims.CourseID
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, mapClaims).SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "[Codec.Sign] SignedString")
	}
	return signed, nil
}

// Verify checks the signature and expiry of a compact token and returns its
// claims. The signature comparison checks byte length first and then
// compares in constant time. No claim-shape validation beyond expiry is
// performed here; that is the caller's responsibility.
func (c *Codec) Verify(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, MalformedTokenErr
	}

	suppliedSig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, MalformedTokenErr
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	expectedSig := mac.Sum(nil)

	if len(suppliedSig) != len(expectedSig) {
		return nil, BadSignatureErr
	}
	if subtle.ConstantTimeCompare(suppliedSig, expectedSig) != 1 {
		return nil, BadSignatureErr
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, MalformedTokenErr
	}

	var body struct {
		Sub      string `json:"sub"`
		Auth     string `json:"auth"`
		CourseID string `json:"courseId"`
		Iat      int64  `json:"iat"`
		Exp      *int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, MalformedTokenErr
	}

	if body.Exp == nil || c.nowTime().Unix() > *body.Exp {
		return nil, ExpiredTokenErr
	}

	return &Claims{
		Subject:    body.Sub,
		AuthMethod: AuthMethod(body.Auth),
		CourseID:   body.CourseID,
		IssuedAt:   time.Unix(body.Iat, 0),
		ExpiresAt:  time.Unix(*body.Exp, 0),
	}, nil
}

// IsVerificationError reports whether err is one of the token verification
// failures. All of them map to a single "re-authenticate" response.
func IsVerificationError(err error) bool {
	return errors.Is(err, MalformedTokenErr) ||
		errors.Is(err, BadSignatureErr) ||
		errors.Is(err, ExpiredTokenErr)
}
