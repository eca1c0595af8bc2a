package store

import (
	"context"
	"errors"
	"time"

	"github.com/glasswing/auth-relay/internal/session"
)

// ErrSessionNotFound is returned when a session doesn't exist. Evicted
// sessions return the same error as ids that were never issued, so lookups
// can't be used to probe which ids ever existed.
var ErrSessionNotFound = errors.New("session not found")

// Patch describes a forward-only mutation of a session. Zero-value fields
// are left untouched.
type Patch struct {
	Status     session.Status
	Credential string
	Identity   *session.Identity
}

// Store is the registry of in-flight login attempts. Implementations must
// support concurrent status reads, callback writes, and sweeps. The session
// TTL is fixed at construction so that lookups can treat stale entries as
// absent even before a sweep runs.
type Store interface {
	// Create registers a new pending session with a fresh unguessable id.
	Create(ctx context.Context, provider, callbackScheme string) (session.Session, error)

	// Get returns the session for id, or ErrSessionNotFound if the id is
	// unknown or the session has outlived its TTL.
	Get(ctx context.Context, id string) (session.Session, error)

	// Update applies patch to the session for id. Unknown ids are a silent
	// no-op: a browser callback arriving after eviction must not error.
	Update(ctx context.Context, id string, patch Patch) error

	// Sweep removes all sessions that have outlived the TTL as of now and
	// returns how many were evicted.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// apply merges patch into s, enforcing the session invariants: status never
// regresses, and credential and identity are write-once.
func apply(s *session.Session, patch Patch) {
	if patch.Status != "" && s.Status.CanAdvanceTo(patch.Status) {
		s.Status = patch.Status
	}
	if patch.Credential != "" && s.Credential == "" {
		s.Credential = patch.Credential
	}
	if patch.Identity != nil && s.Identity == nil {
		identity := *patch.Identity
		s.Identity = &identity
	}
}
