package provider

import (
	"fmt"
	"sort"
)

// Provider builds the browser authorization URL for one identity provider.
// The URL must route the browser back to the relay's callback endpoint with
// the session id attached, so the relay can correlate the browser-side
// completion with the waiting desktop client.
type Provider interface {
	// Name returns the provider identifier clients pass to the initiate
	// endpoint (e.g. "google").
	Name() string

	// AuthURL returns the URL the system browser should open to start the
	// login for the given session.
	AuthURL(sessionID string) (string, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Lookup returns the provider registered under name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
