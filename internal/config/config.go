package config

type Config interface {
	EnvConfig
	SecurityConfig
	RateLimitConfig
	SSOConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetContentBaseURL() string
}

type mainConfig struct {
	EnvVars
	Security
	RateLimit
	SSO
	Store
}

func New() Config {
	return mainConfig{}
}
