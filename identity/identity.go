// Package identity wraps the external SSO identity provider. The rest of
// the system only sees the Verifier interface; the OIDC machinery stays
// here.
package identity

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// IdentityRejectedErr covers every SSO verification failure; callers
// surface it as "re-authenticate" without detail.
var IdentityRejectedErr = errors.New("identity rejected")

// Identity is the verified result of an SSO authentication.
type Identity struct {
	Subject string
	Email   string
}

// Verifier authenticates SSO requests.
type Verifier interface {
	// VerifySSO validates a raw OIDC ID token and returns the identity it
	// asserts.
	VerifySSO(ctx context.Context, rawIDToken string) (*Identity, error)
}

// SSOFlow is the authorization-code flow against the identity provider:
// send the learner to the provider's login page, then trade the returned
// code for an ID token.
type SSOFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

var (
	_ Verifier = (*OIDCVerifier)(nil)
	_ SSOFlow  = (*OIDCVerifier)(nil)
)

// OIDCVerifier is the production Verifier, backed by the platform's
// identity provider.
type OIDCVerifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// NewOIDCVerifier discovers the provider at issuerURL and prepares both
// token verification and the authorization-code flow used to send
// unauthenticated learners to the provider's login page.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCVerifier] oidc.NewProvider")
	}

	return &OIDCVerifier{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email"},
		},
	}, nil
}

func (v *OIDCVerifier) VerifySSO(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(IdentityRejectedErr, err.Error())
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(IdentityRejectedErr, err.Error())
	}

	return &Identity{Subject: idToken.Subject, Email: claims.Email}, nil
}

// AuthCodeURL returns the provider login URL for the given CSRF state.
func (v *OIDCVerifier) AuthCodeURL(state string) string {
	return v.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for the provider's raw ID token,
// verified before it is handed back.
func (v *OIDCVerifier) Exchange(ctx context.Context, code string) (string, error) {
	oauthToken, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		return "", errors.Wrap(IdentityRejectedErr, err.Error())
	}

	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return "", errors.Wrap(IdentityRejectedErr, "no id_token in token response")
	}
	if _, err := v.VerifySSO(ctx, rawIDToken); err != nil {
		return "", err
	}
	return rawIDToken, nil
}
