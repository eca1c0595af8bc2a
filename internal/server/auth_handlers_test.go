package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/glasswing/auth-relay/internal/credential"
	"github.com/glasswing/auth-relay/internal/provider"
	"github.com/glasswing/auth-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeApp is a stand-in for the hosted identity-provider web app's
// introspection endpoint
func fakeApp(t *testing.T, identity map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/session" {
			http.NotFound(w, r)
			return
		}
		if identity == nil {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user": identity})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type relayFixture struct {
	store  *store.MemoryStore
	server *httptest.Server
}

func newRelayFixture(t *testing.T, ttl time.Duration, identity map[string]string) *relayFixture {
	t.Helper()

	app := fakeApp(t, identity)

	memStore := store.NewMemoryStore(ttl)

	google, err := provider.NewHostedProvider("google", app.URL, "https://relay.example.com/auth/callback")
	require.NoError(t, err)

	introspector, err := credential.NewIntrospector(app.URL, credential.DefaultCookieName)
	require.NoError(t, err)

	handlers := NewAuthHandlers(
		memStore,
		provider.NewRegistry(google),
		introspector,
		credential.DefaultCookieName,
		[]string{"app"},
		"app://callback",
	)

	srv := httptest.NewServer(NewHandler(handlers, nil))
	t.Cleanup(srv.Close)

	return &relayFixture{store: memStore, server: srv}
}

func (f *relayFixture) initiate(t *testing.T, body string) (*http.Response, InitiateResponse) {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/auth/init", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var parsed InitiateResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	}
	return resp, parsed
}

func (f *relayFixture) callback(t *testing.T, sessionID, cookie string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/auth/callback?session="+url.QueryEscape(sessionID), nil)
	require.NoError(t, err)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	return resp, body.String()
}

func (f *relayFixture) status(t *testing.T, sessionID string) (*http.Response, StatusResponse) {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/auth/status/" + url.PathEscape(sessionID))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var parsed StatusResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	}
	return resp, parsed
}

func TestInitiate(t *testing.T) {
	f := newRelayFixture(t, time.Minute, nil)

	t.Run("creates session and returns auth URL", func(t *testing.T) {
		resp, parsed := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.NotEmpty(t, parsed.SessionID)

		authURL, err := url.Parse(parsed.AuthURL)
		require.NoError(t, err)
		assert.Equal(t, "/api/auth/signin/google", authURL.Path)
		assert.Contains(t, authURL.Query().Get("callbackUrl"), parsed.SessionID)
	})

	t.Run("missing provider is a 400", func(t *testing.T) {
		resp, _ := f.initiate(t, `{"callbackUrl": "app://cb"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid body is a 400", func(t *testing.T) {
		resp, _ := f.initiate(t, `not json`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unconfigured provider is a 500", func(t *testing.T) {
		resp, _ := f.initiate(t, `{"provider": "facebook"}`)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("disallowed callback scheme is a 400", func(t *testing.T) {
		resp, _ := f.initiate(t, `{"provider": "google", "callbackUrl": "javascript://alert"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty callback falls back to the default", func(t *testing.T) {
		resp, parsed := f.initiate(t, `{"provider": "google"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, parsed.SessionID)
	})
}

func TestCallbackCompletesSession(t *testing.T) {
	f := newRelayFixture(t, time.Minute, map[string]string{"name": "Ada Lovelace", "email": "ada@example.com"})

	_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

	resp, body := f.callback(t, init.SessionID, "next-auth.session-token=tok1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	// The deep link lands inside the page script, where the template engine
	// escapes slashes
	assert.Contains(t, body, `app:\/\/cb?`)
	assert.Contains(t, body, "token=tok1")
	assert.Contains(t, body, "ada%40example.com")

	statusResp, status := f.status(t, init.SessionID)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	assert.Equal(t, "complete", string(status.Status))
	assert.Equal(t, "tok1", status.Token)
}

func TestCallbackIsIdempotent(t *testing.T) {
	f := newRelayFixture(t, time.Minute, nil)

	_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

	resp1, body1 := f.callback(t, init.SessionID, "next-auth.session-token=tok1")
	require.Equal(t, http.StatusOK, resp1.StatusCode)

	// Browser retry with a different cookie must not mint a new credential
	resp2, body2 := f.callback(t, init.SessionID, "next-auth.session-token=tok2")
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	assert.Contains(t, body1, "token=tok1")
	assert.Contains(t, body2, "token=tok1")
	assert.NotContains(t, body2, "token=tok2")

	_, status := f.status(t, init.SessionID)
	assert.Equal(t, "tok1", status.Token)
}

func TestCallbackCookieVariants(t *testing.T) {
	for _, cookie := range []string{
		"next-auth.session-token=tokv",
		"__Secure-next-auth.session-token=tokv",
		"__Host-next-auth.session-token=tokv",
	} {
		name, _, _ := strings.Cut(cookie, "=")
		t.Run(name, func(t *testing.T) {
			f := newRelayFixture(t, time.Minute, nil)
			_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

			_, body := f.callback(t, init.SessionID, cookie)
			assert.Contains(t, body, "token=tokv")
		})
	}
}

func TestCallbackDegradedMode(t *testing.T) {
	f := newRelayFixture(t, time.Minute, nil)

	_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

	// No cookies at all: the session still completes, with the session id as
	// the credential
	resp, body := f.callback(t, init.SessionID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "token="+init.SessionID)

	_, status := f.status(t, init.SessionID)
	assert.Equal(t, "complete", string(status.Status))
	assert.Equal(t, init.SessionID, status.Token)
}

func TestCallbackIdentityFailureDoesNotBlockCompletion(t *testing.T) {
	// fakeApp with nil identity answers introspection with an anonymous {}
	f := newRelayFixture(t, time.Minute, nil)

	_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

	_, body := f.callback(t, init.SessionID, "next-auth.session-token=tok1")
	assert.Contains(t, body, "token=tok1")
	assert.NotContains(t, body, "email=")

	_, status := f.status(t, init.SessionID)
	assert.Equal(t, "complete", string(status.Status))
}

func TestCallbackLifecycleErrors(t *testing.T) {
	f := newRelayFixture(t, time.Minute, nil)

	t.Run("missing session parameter is a 400", func(t *testing.T) {
		resp, err := http.Get(f.server.URL + "/auth/callback")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	})

	t.Run("unknown session renders a readable page", func(t *testing.T) {
		resp, body := f.callback(t, "doesnotexist", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		assert.Contains(t, body, "not found or expired")
	})
}

func TestStatus(t *testing.T) {
	f := newRelayFixture(t, time.Minute, nil)

	t.Run("pending before callback", func(t *testing.T) {
		_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

		resp, status := f.status(t, init.SessionID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "pending", string(status.Status))
		assert.Empty(t, status.Token, "credential must not leak before completion")
	})

	t.Run("unknown session is a 404", func(t *testing.T) {
		resp, _ := f.status(t, "doesnotexist")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSessionExpiry(t *testing.T) {
	f := newRelayFixture(t, 50*time.Millisecond, nil)

	_, init := f.initiate(t, `{"provider": "google", "callbackUrl": "app://cb"}`)

	// Valid while fresh
	resp, _ := f.status(t, init.SessionID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(80 * time.Millisecond)

	resp, _ = f.status(t, init.SessionID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "expired session must be unreachable without a sweep")

	_, body := f.callback(t, init.SessionID, "next-auth.session-token=tok1")
	assert.Contains(t, body, "not found or expired")
}

func TestHealth(t *testing.T) {
	f := newRelayFixture(t, time.Minute, nil)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
