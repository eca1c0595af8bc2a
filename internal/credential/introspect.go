package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/glasswing/auth-relay/internal/ioutil"
	"github.com/glasswing/auth-relay/internal/session"
	"github.com/glasswing/auth-relay/internal/urlutil"
)

// FailureKind classifies introspection failures. Callers on the relay's
// callback path must treat all kinds identically: identity resolution is
// best-effort and never blocks session completion.
type FailureKind string

const (
	FailureNetwork      FailureKind = "network"
	FailureUnauthorized FailureKind = "unauthorized"
	FailureMalformed    FailureKind = "malformed"
)

// IntrospectionError is a typed failure from the identity provider's
// session-introspection endpoint.
type IntrospectionError struct {
	Kind FailureKind
	Err  error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspection failed (%s): %v", e.Kind, e.Err)
}

func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// maxBodySize caps introspection response bodies
const maxBodySize = 1 << 20

// Introspector resolves provider session tokens to user identities by
// calling the identity provider's introspection endpoints.
type Introspector struct {
	sessionURL  string
	validateURL string
	cookieName  string
	client      *http.Client
}

// NewIntrospector creates an introspection client for the identity provider
// at baseURL. cookieName is the provider's session cookie base name.
func NewIntrospector(baseURL, cookieName string) (*Introspector, error) {
	sessionURL, err := urlutil.JoinPath(baseURL, "api/auth/session")
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	validateURL, err := urlutil.JoinPath(baseURL, "api/session")
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}

	return &Introspector{
		sessionURL:  sessionURL,
		validateURL: validateURL,
		cookieName:  cookieName,
		client:      &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// sessionResponse is the introspection payload. An authenticated session
// carries a user object; an anonymous one comes back empty.
type sessionResponse struct {
	User *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

// IntrospectCookie forwards the provider session cookie to the provider's
// session endpoint and returns the resolved identity.
func (i *Introspector) IntrospectCookie(ctx context.Context, cookieValue string) (*session.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.sessionURL, nil)
	if err != nil {
		return nil, &IntrospectionError{Kind: FailureNetwork, Err: err}
	}
	req.AddCookie(&http.Cookie{Name: i.cookieName, Value: cookieValue})

	return i.do(req)
}

// ValidateToken asks the provider to resolve an opaque credential to an
// identity. The desktop client uses this to validate degraded-mode
// credentials after delivery.
func (i *Introspector) ValidateToken(ctx context.Context, token string) (*session.Identity, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, &IntrospectionError{Kind: FailureMalformed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.validateURL, bytes.NewReader(body))
	if err != nil {
		return nil, &IntrospectionError{Kind: FailureNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return i.do(req)
}

func (i *Introspector) do(req *http.Request) (*session.Identity, error) {
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &IntrospectionError{Kind: FailureNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &IntrospectionError{
			Kind: FailureUnauthorized,
			Err:  fmt.Errorf("provider rejected credential: status %d", resp.StatusCode),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &IntrospectionError{
			Kind: FailureNetwork,
			Err:  fmt.Errorf("unexpected status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, 256)),
		}
	}

	data, err := ioutil.ReadAllLimited(resp.Body, maxBodySize)
	if err != nil {
		return nil, &IntrospectionError{Kind: FailureMalformed, Err: err}
	}

	var parsed sessionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &IntrospectionError{Kind: FailureMalformed, Err: err}
	}

	// NextAuth answers 200 with an empty object when the session is anonymous
	if parsed.User == nil || (parsed.User.Name == "" && parsed.User.Email == "") {
		return nil, &IntrospectionError{
			Kind: FailureUnauthorized,
			Err:  fmt.Errorf("no authenticated user in provider response"),
		}
	}

	return &session.Identity{
		Name:  parsed.User.Name,
		Email: parsed.User.Email,
	}, nil
}
