package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"

	"github.com/glasswing/auth-relay/internal/credential"
	jsonwriter "github.com/glasswing/auth-relay/internal/json"
	"github.com/glasswing/auth-relay/internal/log"
	"github.com/glasswing/auth-relay/internal/provider"
	"github.com/glasswing/auth-relay/internal/session"
	"github.com/glasswing/auth-relay/internal/store"
)

// AuthHandlers provides the relay's HTTP handlers with dependency injection
type AuthHandlers struct {
	store              store.Store
	providers          *provider.Registry
	introspector       *credential.Introspector
	cookieName         string
	allowedSchemes     []string
	defaultCallbackURL string
}

// NewAuthHandlers creates the relay handlers.
func NewAuthHandlers(
	sessionStore store.Store,
	providers *provider.Registry,
	introspector *credential.Introspector,
	cookieName string,
	allowedSchemes []string,
	defaultCallbackURL string,
) *AuthHandlers {
	return &AuthHandlers{
		store:              sessionStore,
		providers:          providers,
		introspector:       introspector,
		cookieName:         cookieName,
		allowedSchemes:     allowedSchemes,
		defaultCallbackURL: defaultCallbackURL,
	}
}

// InitiateRequest is the body of POST /auth/init
type InitiateRequest struct {
	Provider    string `json:"provider"`
	CallbackURL string `json:"callbackUrl"`
}

// InitiateResponse is the success body of POST /auth/init
type InitiateResponse struct {
	AuthURL   string `json:"authUrl"`
	SessionID string `json:"sessionId"`
}

// InitiateHandler starts a login attempt: it registers a session and returns
// the provider authorization URL the desktop should open in the browser.
func (h *AuthHandlers) InitiateHandler(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Provider == "" {
		jsonwriter.WriteBadRequest(w, "Missing provider")
		return
	}

	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = h.defaultCallbackURL
	}
	if err := h.validateCallbackURL(callbackURL); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}

	p, err := h.providers.Lookup(req.Provider)
	if err != nil {
		// A provider we have no configuration for is a deployment problem,
		// not a client input problem
		log.LogErrorWithFields("auth", "No configuration for requested provider", map[string]any{
			"provider": req.Provider,
			"known":    h.providers.Names(),
		})
		jsonwriter.WriteInternalServerError(w, "Provider is not configured")
		return
	}

	sess, err := h.store.Create(r.Context(), req.Provider, callbackURL)
	if err != nil {
		log.LogError("Failed to create session: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to create session")
		return
	}

	authURL, err := p.AuthURL(sess.ID)
	if err != nil {
		log.LogError("Failed to build auth URL for provider %s: %v", req.Provider, err)
		jsonwriter.WriteInternalServerError(w, "Failed to build authorization URL")
		return
	}

	log.LogInfoWithFields("auth", "Login session created", map[string]any{
		"session":  sess.ID,
		"provider": req.Provider,
	})

	_ = jsonwriter.Write(w, InitiateResponse{AuthURL: authURL, SessionID: sess.ID})
}

func (h *AuthHandlers) validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("Invalid callback URL")
	}
	if !slices.Contains(h.allowedSchemes, u.Scheme) {
		return errors.New("Callback URL scheme is not allowed")
	}
	return nil
}

// CallbackHandler receives the browser after the identity provider finished
// the login. Every step is independently fault-tolerant: a missing cookie
// degrades to the session id as credential, and a failed identity lookup
// never blocks completion. Calling it twice for the same session re-renders
// the bridge page with the already-stored credential.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		// Direct OAuth providers carry the session id in the state parameter
		sessionID = r.URL.Query().Get("state")
	}
	if sessionID == "" {
		renderMessage(w, http.StatusBadRequest, "Missing session",
			"This sign-in link is incomplete. Start the login again from the app.")
		return
	}

	sess, err := h.store.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			log.LogError("Failed to look up session: %v", err)
		}
		renderMessage(w, http.StatusOK, "Session not found or expired",
			"This sign-in attempt is no longer active. Return to the app and start the login again.")
		return
	}

	if sess.Status != session.StatusComplete {
		h.completeSession(r, &sess)
	}

	h.renderBridge(w, sess)
}

// completeSession runs the one-time completion steps and refreshes sess with
// the stored result, so concurrent duplicate callbacks all observe the same
// first-written credential.
func (h *AuthHandlers) completeSession(r *http.Request, sess *session.Session) {
	ctx := r.Context()

	cookieValue, found := credential.FromRequest(r, h.cookieName)
	token := cookieValue
	if !found {
		// Degraded mode: no provider cookie reached us. The session id is
		// unguessable, so it stands in as the opaque credential; the desktop
		// app validates it against the provider afterwards.
		token = sess.ID
		log.LogWarnWithFields("auth", "No provider session cookie on callback, using degraded credential", map[string]any{
			"session": sess.ID,
		})
	}

	if err := h.store.Update(ctx, sess.ID, store.Patch{
		Status:     session.StatusCallbackReceived,
		Credential: token,
	}); err != nil {
		log.LogError("Failed to record callback: %v", err)
	}

	var identity *session.Identity
	if found {
		resolved, err := h.introspector.IntrospectCookie(ctx, cookieValue)
		if err != nil {
			// Best-effort only: network, unauthorized and malformed all mean
			// "no identity resolved"
			log.LogDebugWithFields("auth", "Identity introspection failed", map[string]any{
				"session": sess.ID,
				"error":   err.Error(),
			})
		} else {
			identity = resolved
		}
	}

	if err := h.store.Update(ctx, sess.ID, store.Patch{
		Status:   session.StatusComplete,
		Identity: identity,
	}); err != nil {
		log.LogError("Failed to complete session: %v", err)
	}

	if stored, err := h.store.Get(ctx, sess.ID); err == nil {
		*sess = stored
	} else {
		// Evicted mid-callback; render with what we computed
		sess.Status = session.StatusComplete
		sess.Credential = token
		sess.Identity = identity
	}

	log.LogInfoWithFields("auth", "Login session completed", map[string]any{
		"session":  sess.ID,
		"provider": sess.Provider,
		"degraded": !found,
	})
}

func (h *AuthHandlers) renderBridge(w http.ResponseWriter, sess session.Session) {
	deepLink, err := buildDeepLink(sess)
	if err != nil {
		log.LogError("Failed to build deep link for session %s: %v", sess.ID, err)
		renderMessage(w, http.StatusOK, "Sign-in complete",
			"You're signed in, but we couldn't hand off to the app automatically. Return to the app to continue.")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := bridgePageTemplate.Execute(w, BridgePageData{
		SessionID: sess.ID,
		DeepLink:  deepLink,
	}); err != nil {
		log.LogError("Failed to render bridge page: %v", err)
	}
}

// buildDeepLink assembles the desktop hand-off URL from the session's
// callback scheme, with credential, session id and identity fields
// percent-encoded as query parameters.
func buildDeepLink(sess session.Session) (string, error) {
	u, err := url.Parse(sess.CallbackScheme)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("token", sess.Credential)
	q.Set("session", sess.ID)
	if sess.Identity != nil {
		if sess.Identity.Name != "" {
			q.Set("name", sess.Identity.Name)
		}
		if sess.Identity.Email != "" {
			q.Set("email", sess.Identity.Email)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func renderMessage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := messagePageTemplate.Execute(w, MessagePageData{Title: title, Message: message}); err != nil {
		log.LogError("Failed to render message page: %v", err)
	}
}

// StatusResponse is the body of GET /auth/status/{session}
type StatusResponse struct {
	Status session.Status `json:"status"`
	Token  string         `json:"token,omitempty"`
}

// StatusHandler serves the polling channel. Unknown and evicted sessions are
// both a plain 404 so the response can't be used to probe which ids ever
// existed.
func (h *AuthHandlers) StatusHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if sessionID == "" {
		jsonwriter.WriteBadRequest(w, "Missing session id")
		return
	}

	sess, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			log.LogError("Failed to look up session: %v", err)
			jsonwriter.WriteInternalServerError(w, "Failed to look up session")
			return
		}
		jsonwriter.WriteNotFound(w, "Session not found or expired")
		return
	}

	resp := StatusResponse{Status: sess.Status}
	if sess.Status == session.StatusComplete {
		resp.Token = sess.Credential
	} else {
		// The credential is only handed out once the session is terminal
		resp.Status = session.StatusPending
	}
	_ = jsonwriter.Write(w, resp)
}
