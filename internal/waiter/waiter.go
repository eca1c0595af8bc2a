package waiter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glasswing/auth-relay/internal/log"
	"github.com/glasswing/auth-relay/internal/session"
)

// State tracks a login attempt through its lifecycle.
type State string

const (
	StateIdle          State = "idle"
	StateBrowserOpened State = "browser_opened"
	StateWaiting       State = "waiting"
	StateResolved      State = "resolved"
	StateExpired       State = "expired"
	StateFailed        State = "failed"
)

// ErrLoginExpired is returned by Login when the session expires on the relay
// or the overall timeout elapses before a credential arrives.
var ErrLoginExpired = errors.New("login expired before completing")

// Result is a successful login outcome.
type Result struct {
	SessionID string
	Token     string
	Identity  session.Identity
}

const (
	defaultTimeout      = 5 * time.Minute
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 150
)

// Option configures a Waiter.
type Option func(*Waiter)

// WithTimeout sets the overall deadline for a login attempt.
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) { w.timeout = d }
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) { w.pollInterval = d }
}

// WithMaxPollAttempts caps how many status polls a login attempt makes.
// The deep-link channel keeps listening after the cap is reached.
func WithMaxPollAttempts(n int) Option {
	return func(w *Waiter) { w.maxPollAttempts = n }
}

// WithEventSource attaches an OS deep-link event source. Without one the
// waiter runs in polling-only mode.
func WithEventSource(src EventSource) Option {
	return func(w *Waiter) { w.events = src }
}

// WithBrowserOpener overrides how the login URL is handed to the user's
// browser. The default is a no-op so callers must supply one outside tests.
func WithBrowserOpener(open func(url string) error) Option {
	return func(w *Waiter) { w.openBrowser = open }
}

// Waiter drives a desktop login attempt: it initiates a session on the
// relay, opens the login URL in the browser, and waits for the credential
// to arrive on either the deep-link channel or the polling channel,
// whichever delivers first.
type Waiter struct {
	relay           RelayClient
	events          EventSource
	openBrowser     func(url string) error
	callbackURL     string
	timeout         time.Duration
	pollInterval    time.Duration
	maxPollAttempts int

	mu    sync.Mutex
	state State

	// resolutions counts how many times a login attempt produced a final
	// outcome. It never exceeds one per attempt regardless of how many
	// channels deliver.
	resolutions atomic.Int64
}

// New creates a Waiter that talks to the relay through client and asks the
// bridge page to hand off to callbackURL.
func New(client RelayClient, callbackURL string, opts ...Option) *Waiter {
	w := &Waiter{
		relay:           client,
		openBrowser:     func(string) error { return nil },
		callbackURL:     callbackURL,
		timeout:         defaultTimeout,
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultPollAttempts,
		state:           StateIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State reports the current lifecycle state of the most recent login attempt.
func (w *Waiter) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Resolutions reports how many final outcomes the waiter has produced.
func (w *Waiter) Resolutions() int64 {
	return w.resolutions.Load()
}

func (w *Waiter) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Waiter) fail(err error) (*Result, error) {
	w.setState(StateFailed)
	return nil, err
}

type outcome struct {
	result *Result
	err    error
}

// Login runs a full login attempt against the relay for the named provider.
// It blocks until a credential arrives, the session expires, or ctx is done.
func (w *Waiter) Login(ctx context.Context, provider string) (*Result, error) {
	w.setState(StateIdle)

	init, err := w.relay.Initiate(ctx, provider, w.callbackURL)
	if err != nil {
		return w.fail(fmt.Errorf("initiating login: %w", err))
	}
	if err := validateAuthURL(init.AuthURL); err != nil {
		return w.fail(err)
	}
	if init.SessionID == "" {
		return w.fail(errors.New("relay returned an empty session id"))
	}

	w.setState(StateBrowserOpened)
	if err := w.openBrowser(init.AuthURL); err != nil {
		return w.fail(fmt.Errorf("opening browser: %w", err))
	}

	log.LogInfoWithFields("waiter", "Waiting for login to complete", map[string]interface{}{
		"provider": provider,
		"session":  init.SessionID,
	})
	w.setState(StateWaiting)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	// Buffered so a late channel can deliver without blocking after the
	// first outcome has already been taken.
	outcomes := make(chan outcome, 2)
	var once sync.Once
	resolve := func(o outcome) {
		once.Do(func() {
			w.resolutions.Add(1)
			outcomes <- o
		})
	}

	w.listenDeepLinks(ctx, init.SessionID, resolve)
	go w.poll(ctx, init.SessionID, resolve)

	select {
	case o := <-outcomes:
		if o.err != nil {
			if errors.Is(o.err, ErrLoginExpired) {
				w.setState(StateExpired)
			} else {
				w.setState(StateFailed)
			}
			return nil, o.err
		}
		w.setState(StateResolved)
		return o.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			w.setState(StateExpired)
			return nil, ErrLoginExpired
		}
		w.setState(StateFailed)
		return nil, ctx.Err()
	}
}

// validateAuthURL rejects login URLs that a browser could not open.
func validateAuthURL(raw string) error {
	if raw == "" {
		return errors.New("relay returned an empty login URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("relay returned an invalid login URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("relay returned a login URL with scheme %q", u.Scheme)
	}
	return nil
}

// listenDeepLinks subscribes to the OS deep-link source and resolves the
// attempt when a matching hand-off arrives. Subscription failure degrades
// the attempt to polling-only.
func (w *Waiter) listenDeepLinks(ctx context.Context, sessionID string, resolve func(outcome)) {
	if w.events == nil {
		return
	}

	scheme, err := callbackScheme(w.callbackURL)
	if err != nil {
		log.LogWarnWithFields("waiter", "Invalid callback URL, deep links disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	links, unsubscribe, err := w.events.Subscribe(ctx)
	if err != nil {
		log.LogWarnWithFields("waiter", "Deep link subscription failed, polling only", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	go func() {
		defer unsubscribe()
		for {
			select {
			case raw, ok := <-links:
				if !ok {
					return
				}
				d, err := ParseDeepLink(raw, scheme)
				if err != nil {
					log.LogDebugWithFields("waiter", "Ignoring deep link", map[string]interface{}{
						"error": err.Error(),
					})
					continue
				}
				// Hand-offs for other sessions are not ours to consume.
				if d.SessionID != sessionID {
					continue
				}
				resolve(outcome{result: &Result{
					SessionID: d.SessionID,
					Token:     d.Token,
					Identity:  session.Identity{Name: d.Name, Email: d.Email},
				}})
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// poll asks the relay for the session status until it completes, disappears,
// or the attempt cap is reached. Transient errors are retried.
func (w *Waiter) poll(ctx context.Context, sessionID string, resolve func(outcome)) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < w.maxPollAttempts; attempt++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		status, err := w.relay.Status(ctx, sessionID)
		if err != nil {
			if errors.Is(err, ErrSessionGone) {
				resolve(outcome{err: ErrLoginExpired})
				return
			}
			log.LogDebugWithFields("waiter", "Status poll failed", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if status.Status == "complete" && status.Token != "" {
			resolve(outcome{result: &Result{
				SessionID: sessionID,
				Token:     status.Token,
			}})
			return
		}
	}
}

func callbackScheme(callbackURL string) (string, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("callback URL %q has no scheme", callbackURL)
	}
	return u.Scheme, nil
}
