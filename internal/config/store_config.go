package config

type StoreConfig interface {
	GetDatabaseURL() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetDatabaseURL returns the Postgres connection string. Empty means the
// in-memory stores are used instead (development only).
func (Store) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}
