package waiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/glasswing/auth-relay/internal/ioutil"
	"github.com/glasswing/auth-relay/internal/urlutil"
)

// ErrSessionGone is returned by Status when the relay no longer knows the
// session. The poll loop stops immediately on it instead of waiting out the
// full timeout.
var ErrSessionGone = errors.New("session not found or expired")

// InitiateResult is the relay's answer to an initiate call
type InitiateResult struct {
	AuthURL   string `json:"authUrl"`
	SessionID string `json:"sessionId"`
}

// StatusResult is the relay's answer to a status poll
type StatusResult struct {
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

// RelayClient is the waiter's view of the relay HTTP surface
type RelayClient interface {
	Initiate(ctx context.Context, provider, callbackURL string) (InitiateResult, error)
	Status(ctx context.Context, sessionID string) (StatusResult, error)
}

// Client talks to the relay server over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

var _ RelayClient = (*Client)(nil)

// NewClient creates a relay client for the relay at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Initiate starts a login attempt on the relay.
func (c *Client) Initiate(ctx context.Context, provider, callbackURL string) (InitiateResult, error) {
	initURL, err := urlutil.JoinPath(c.baseURL, "auth/init")
	if err != nil {
		return InitiateResult{}, fmt.Errorf("invalid relay base URL: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"provider":    provider,
		"callbackUrl": callbackURL,
	})
	if err != nil {
		return InitiateResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, initURL, bytes.NewReader(body))
	if err != nil {
		return InitiateResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("initiate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return InitiateResult{}, fmt.Errorf("initiate failed: status %d: %s",
			resp.StatusCode, ioutil.ReadLimited(resp.Body, 256))
	}

	var result InitiateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return InitiateResult{}, fmt.Errorf("decoding initiate response: %w", err)
	}
	return result, nil
}

// Status polls the relay for the session's current state.
func (c *Client) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	statusURL, err := urlutil.JoinPath(c.baseURL, "auth/status", url.PathEscape(sessionID))
	if err != nil {
		return StatusResult{}, fmt.Errorf("invalid relay base URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return StatusResult{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return StatusResult{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return StatusResult{}, ErrSessionGone
	default:
		return StatusResult{}, fmt.Errorf("status failed: status %d", resp.StatusCode)
	}

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return StatusResult{}, fmt.Errorf("decoding status response: %w", err)
	}
	return result, nil
}
