package config

import "time"

// Config is the full client configuration, composed from the TOML config file
// with environment-variable overrides.
type Config interface {
	EnvConfig
	SessionConfig
	ProviderConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetDataFolder() string
	GetEnv() string
}

type SessionConfig interface {
	GetExchangeTimeout() time.Duration
	GetPersistByDefault() bool
	GetRetainFailedCallback() bool
	GetCallbackListenAddr() string
}

type ProviderConfig interface {
	GetProviders() []Provider
}

// New loads the configuration file (if present) and applies environment
// overrides.
func New() (Config, error) {
	return load(GetEnv(configPathVar, defaultConfigPath()))
}
