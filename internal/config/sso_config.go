package config

type SSOConfig interface {
	GetSSOIssuerURL() string
	GetSSOClientID() string
	GetSSOClientSecret() string
	GetSSORedirectURL() string
}

type SSO struct{}

var _ SSOConfig = SSO{}

// GetSSOIssuerURL returns the OIDC issuer for corporate single sign-on.
// Empty means SSO is not configured and only magic links are accepted.
func (SSO) GetSSOIssuerURL() string {
	return GetEnv("SSO_ISSUER_URL", "")
}

func (SSO) GetSSOClientID() string {
	return GetEnv("SSO_CLIENT_ID", "")
}

func (SSO) GetSSOClientSecret() string {
	return GetEnv("SSO_CLIENT_SECRET", "")
}

func (SSO) GetSSORedirectURL() string {
	return GetEnv("SSO_REDIRECT_URL", "")
}
