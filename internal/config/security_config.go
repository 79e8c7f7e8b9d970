package config

import (
	"time"
)

type SecurityConfig interface {
	GetTokenSecret() string
	GetTokenTTL() time.Duration
	GetPinSalt() string
	GetMagicLinkTTL() time.Duration
	GetAdminAPIKey() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetTokenSecret() string {
	return GetEnv("TOKEN_SECRET", "")
}

func (Security) GetTokenTTL() time.Duration {
	return durationEnv("TOKEN_TTL", 15*time.Minute)
}

func (Security) GetPinSalt() string {
	return GetEnv("PIN_SALT", "")
}

func (Security) GetMagicLinkTTL() time.Duration {
	return durationEnv("MAGIC_LINK_TTL", 72*time.Hour)
}

// GetAdminAPIKey authenticates the campaign system's link-issuance calls.
// Empty means the issuance endpoint is disabled.
func (Security) GetAdminAPIKey() string {
	return GetEnv("ADMIN_API_KEY", "")
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
