package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed. In config JSON it
// may be written either as a literal or as {"$env": "VAR_NAME"}; env
// references are resolved at load time.
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// UnmarshalJSON resolves {"$env": "VAR"} references immediately
func (s *Secret) UnmarshalJSON(data []byte) error {
	value, err := resolveValue(data)
	if err != nil {
		return err
	}
	*s = Secret(value)
	return nil
}

// Duration is a time.Duration that unmarshals from a string like "5m"
type Duration time.Duration

// UnmarshalJSON parses a duration string
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Value returns the underlying time.Duration
func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

// resolveValue accepts either a JSON string literal or an {"$env": "VAR"}
// reference and returns the resolved string.
func resolveValue(data []byte) (string, error) {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		return literal, nil
	}

	var ref struct {
		Env string `json:"$env"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", fmt.Errorf("expected string or {\"$env\": \"VAR\"}: %w", err)
	}
	if ref.Env == "" {
		return "", fmt.Errorf("expected string or {\"$env\": \"VAR\"}")
	}

	value, ok := os.LookupEnv(ref.Env)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", ref.Env)
	}
	return value, nil
}

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageMemory StorageKind = "memory"
	StorageRedis  StorageKind = "redis"
)

// ProviderKind selects how a provider's authorization URL is built
type ProviderKind string

const (
	// ProviderKindHosted routes the login through the hosted web app's own
	// sign-in flow (cookie-issuing, NextAuth-style).
	ProviderKindHosted ProviderKind = "hosted"

	// ProviderKindOAuth talks OAuth 2.0 to the identity provider directly.
	ProviderKindOAuth ProviderKind = "oauth"
)

// RelayConfig configures the relay HTTP service
type RelayConfig struct {
	// BaseURL is the public URL the relay is reachable at; the callback
	// redirect target is derived from it.
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`

	// AppBaseURL is the hosted identity-provider web application used for
	// sign-in and session introspection.
	AppBaseURL string `json:"appBaseURL"`

	// CookieName is the provider session cookie base name; the __Secure- and
	// __Host- variants are derived from it.
	CookieName string `json:"cookieName,omitempty"`

	Storage   StorageKind `json:"storage,omitempty"`
	RedisAddr string      `json:"redisAddr,omitempty"`

	SessionTTL    Duration `json:"sessionTtl,omitempty"`
	SweepInterval Duration `json:"sweepInterval,omitempty"`

	// AllowedCallbackSchemes lists the URI schemes accepted as desktop
	// deep-link targets.
	AllowedCallbackSchemes []string `json:"allowedCallbackSchemes,omitempty"`

	// DefaultCallbackURL is used when the initiate request doesn't name one.
	DefaultCallbackURL string `json:"defaultCallbackUrl,omitempty"`

	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// ProviderConfig configures one identity provider
type ProviderConfig struct {
	Kind ProviderKind `json:"kind,omitempty"`

	// For kind "oauth"
	ClientID     string   `json:"clientId,omitempty"`
	ClientSecret Secret   `json:"clientSecret,omitempty"`
	Endpoint     string   `json:"endpoint,omitempty"`
	AuthURL      string   `json:"authUrl,omitempty"`
	TokenURL     string   `json:"tokenUrl,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Config is the root configuration
type Config struct {
	Version   string                    `json:"version"`
	Relay     RelayConfig               `json:"relay"`
	Providers map[string]ProviderConfig `json:"providers"`
}
