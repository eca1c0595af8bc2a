package provider

import (
	"fmt"
	"net/url"

	"github.com/glasswing/auth-relay/internal/urlutil"
)

// HostedProvider starts the login through a hosted web application that runs
// its own NextAuth-style sign-in flow. The relay never talks to the social
// login directly; it sends the browser to the web app's sign-in page for the
// named upstream and asks it to land back on the relay callback when done.
type HostedProvider struct {
	name        string
	signinURL   string
	callbackURL string
}

// NewHostedProvider creates a provider for the upstream named name, hosted
// at appBaseURL. relayCallbackURL is the relay's own callback endpoint.
func NewHostedProvider(name, appBaseURL, relayCallbackURL string) (*HostedProvider, error) {
	signinURL, err := urlutil.JoinPath(appBaseURL, "api/auth/signin", name)
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}

	return &HostedProvider{
		name:        name,
		signinURL:   signinURL,
		callbackURL: relayCallbackURL,
	}, nil
}

// Name returns the provider identifier.
func (p *HostedProvider) Name() string {
	return p.name
}

// AuthURL returns the hosted sign-in URL with the relay callback (carrying
// the session id) as the post-login destination.
func (p *HostedProvider) AuthURL(sessionID string) (string, error) {
	callback, err := url.Parse(p.callbackURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay callback URL: %w", err)
	}
	q := callback.Query()
	q.Set("session", sessionID)
	callback.RawQuery = q.Encode()

	signin, err := url.Parse(p.signinURL)
	if err != nil {
		return "", fmt.Errorf("invalid sign-in URL: %w", err)
	}
	sq := signin.Query()
	sq.Set("callbackUrl", callback.String())
	signin.RawQuery = sq.Encode()

	return signin.String(), nil
}
