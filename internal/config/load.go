package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/glasswing/auth-relay/internal/envutil"
)

const supportedVersionPrefix = "v1"

// Defaults applied when the config omits a value
const (
	DefaultSessionTTL    = 5 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultCookieName    = "next-auth.session-token"
)

// Load reads, resolves and validates the config file. Env var references
// ({"$env": "VAR"}) are resolved during unmarshaling.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	if config.Version == "" {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(config.Version, supportedVersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", config.Version)
	}

	applyDefaults(&config)

	if err := Validate(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	relay := &config.Relay

	if relay.Storage == "" {
		relay.Storage = StorageMemory
	}
	if relay.CookieName == "" {
		relay.CookieName = DefaultCookieName
	}
	if relay.SessionTTL == 0 {
		relay.SessionTTL = Duration(DefaultSessionTTL)
	}
	if relay.SweepInterval == 0 {
		relay.SweepInterval = Duration(DefaultSweepInterval)
	}
	if len(relay.AllowedCallbackSchemes) == 0 && relay.DefaultCallbackURL != "" {
		if u, err := url.Parse(relay.DefaultCallbackURL); err == nil && u.Scheme != "" {
			relay.AllowedCallbackSchemes = []string{u.Scheme}
		}
	}

	for name, p := range config.Providers {
		if p.Kind == "" {
			p.Kind = ProviderKindHosted
			config.Providers[name] = p
		}
	}
}

// Validate checks the resolved configuration
func Validate(config *Config) error {
	relay := config.Relay

	if relay.BaseURL == "" {
		return fmt.Errorf("relay.baseURL is required")
	}
	if err := validateHTTPURL("relay.baseURL", relay.BaseURL); err != nil {
		return err
	}
	if relay.Addr == "" {
		return fmt.Errorf("relay.addr is required")
	}
	if relay.AppBaseURL == "" {
		return fmt.Errorf("relay.appBaseURL is required")
	}
	if err := validateHTTPURL("relay.appBaseURL", relay.AppBaseURL); err != nil {
		return err
	}

	switch relay.Storage {
	case StorageMemory:
	case StorageRedis:
		if relay.RedisAddr == "" {
			return fmt.Errorf("relay.redisAddr is required with redis storage")
		}
	default:
		return fmt.Errorf("unknown storage kind %q", relay.Storage)
	}

	if relay.SessionTTL.Value() <= 0 {
		return fmt.Errorf("relay.sessionTtl must be positive")
	}
	if relay.SweepInterval.Value() <= 0 {
		return fmt.Errorf("relay.sweepInterval must be positive")
	}

	if len(relay.AllowedCallbackSchemes) == 0 {
		return fmt.Errorf("relay.allowedCallbackSchemes is required (or set relay.defaultCallbackUrl)")
	}
	for _, scheme := range relay.AllowedCallbackSchemes {
		if scheme == "http" || scheme == "https" {
			return fmt.Errorf("callback scheme %q is not a deep link; web schemes are not deliverable to the desktop app", scheme)
		}
	}

	if len(config.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for name, p := range config.Providers {
		switch p.Kind {
		case ProviderKindHosted:
		case ProviderKindOAuth:
			if p.ClientID == "" {
				return fmt.Errorf("provider %s: clientId is required for oauth providers", name)
			}
			if p.ClientSecret == "" {
				return fmt.Errorf("provider %s: clientSecret is required for oauth providers", name)
			}
		default:
			return fmt.Errorf("provider %s: unknown kind %q", name, p.Kind)
		}
	}

	return nil
}

// validateHTTPURL requires an absolute http(s) URL; plain http is only
// allowed in development mode.
func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	switch u.Scheme {
	case "https":
	case "http":
		if !envutil.IsDev() {
			return fmt.Errorf("%s must use https outside development mode", field)
		}
	default:
		return fmt.Errorf("%s must be an http(s) URL", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", field)
	}
	return nil
}
