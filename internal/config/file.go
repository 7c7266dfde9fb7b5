package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	appNameVar    = "APP_NAME"
	baseURLVar    = "API_BASE_URL"
	folderEnvVar  = "FOLDER"
	configPathVar = "CONFIG_FILE"

	defaultAppName = "MyChefAI"
	defaultBaseURL = "http://localhost:8080/api"
)

// Provider describes one configured identity provider.
type Provider struct {
	ID           string   `toml:"id"`
	Kind         string   `toml:"kind"` // "redirect" or "direct"
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	AuthURL      string   `toml:"auth_url"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
	OIDCIssuer   string   `toml:"oidc_issuer"`
	TokenEnvVar  string   `toml:"token_env_var"` // direct flows: env var holding the provider token
}

type sessionSettings struct {
	PersistByDefault       bool   `toml:"persist_by_default"`
	RetainFailedCallback   bool   `toml:"retain_failed_callback"`
	ExchangeTimeoutSeconds int    `toml:"exchange_timeout_seconds"`
	CallbackListenAddr     string `toml:"callback_listen_addr"`
}

type fileConfig struct {
	AppName    string          `toml:"app_name"`
	APIBaseURL string          `toml:"api_base_url"`
	DataFolder string          `toml:"data_folder"`
	Session    sessionSettings `toml:"session"`
	Providers  []Provider      `toml:"providers"`
}

var _ Config = (*fileConfig)(nil)

// load reads the TOML file at path. A missing file yields defaults; a present
// but unreadable file is an error.
func load(path string) (*fileConfig, error) {
	c := &fileConfig{
		Session: sessionSettings{
			PersistByDefault:       true,
			RetainFailedCallback:   true,
			ExchangeTimeoutSeconds: 15,
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, errors.Wrapf(err, "[config.load] parse %q", path)
		}
	}

	for _, p := range c.Providers {
		if p.ID == "" {
			return nil, errors.New("[config.load] provider without id")
		}
		if p.Kind != "redirect" && p.Kind != "direct" {
			return nil, errors.Errorf("[config.load] provider %q: unknown kind %q", p.ID, p.Kind)
		}
	}
	return c, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chefcli.toml"
	}
	return filepath.Join(home, ".mychefai", "config.toml")
}

func (c *fileConfig) GetAppName() string {
	return GetEnv(appNameVar, nonEmpty(c.AppName, defaultAppName))
}

func (c *fileConfig) GetAPIBaseURL() string {
	return GetEnv(baseURLVar, nonEmpty(c.APIBaseURL, defaultBaseURL))
}

func (c *fileConfig) GetDataFolder() string {
	fallback := c.DataFolder
	if fallback == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			fallback = filepath.Join(home, ".mychefai")
		} else {
			fallback = "./data"
		}
	}
	return GetEnv(folderEnvVar, fallback)
}

func (c *fileConfig) GetEnv() string {
	return GetEnv("ENV", "DEV")
}

func (c *fileConfig) GetExchangeTimeout() time.Duration {
	if c.Session.ExchangeTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Session.ExchangeTimeoutSeconds) * time.Second
}

func (c *fileConfig) GetPersistByDefault() bool {
	return c.Session.PersistByDefault
}

func (c *fileConfig) GetRetainFailedCallback() bool {
	return c.Session.RetainFailedCallback
}

func (c *fileConfig) GetCallbackListenAddr() string {
	return c.Session.CallbackListenAddr
}

func (c *fileConfig) GetProviders() []Provider {
	return c.Providers
}

// GetEnv returns the environment variable value or the default when unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func nonEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
