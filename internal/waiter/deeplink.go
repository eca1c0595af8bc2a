package waiter

import (
	"context"
	"fmt"
	"net/url"
)

// EventSource delivers deep-link URIs handed to the application by the
// operating system. Implementations wrap whatever mechanism the platform
// offers (URL scheme handler, single-instance IPC pipe, ...).
type EventSource interface {
	// Subscribe returns a channel of raw deep-link URIs and a function to
	// release the subscription. The channel is closed when the source shuts
	// down or ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan string, func(), error)
}

// Delivery is a parsed deep-link hand-off from the relay's bridge page.
type Delivery struct {
	SessionID string
	Token     string
	Name      string
	Email     string
}

// ParseDeepLink parses a raw deep-link URI and verifies it carries the
// expected custom scheme. URIs for other schemes, or URIs missing the
// session or token parameters, are rejected.
func ParseDeepLink(raw, scheme string) (Delivery, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Delivery{}, fmt.Errorf("parsing deep link: %w", err)
	}
	if u.Scheme != scheme {
		return Delivery{}, fmt.Errorf("unexpected deep link scheme %q", u.Scheme)
	}

	q := u.Query()
	d := Delivery{
		SessionID: q.Get("session"),
		Token:     q.Get("token"),
		Name:      q.Get("name"),
		Email:     q.Get("email"),
	}
	if d.SessionID == "" {
		return Delivery{}, fmt.Errorf("deep link missing session parameter")
	}
	if d.Token == "" {
		return Delivery{}, fmt.Errorf("deep link missing token parameter")
	}
	return d, nil
}
