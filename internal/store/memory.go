package store

import (
	"context"
	"sync"
	"time"

	"github.com/glasswing/auth-relay/internal/crypto"
	"github.com/glasswing/auth-relay/internal/session"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sessions in a process-local map. A relay restart loses
// all in-flight sessions; waiting clients time out and retry rather than
// hanging on a stale server.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a new pending session.
func (s *MemoryStore) Create(ctx context.Context, provider, callbackScheme string) (session.Session, error) {
	id, err := crypto.GenerateSessionID()
	if err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		ID:             id,
		Provider:       provider,
		CallbackScheme: callbackScheme,
		CreatedAt:      s.now(),
		Status:         session.StatusPending,
	}

	s.mu.Lock()
	s.sessions[id] = &sess
	s.mu.Unlock()

	return sess, nil
}

// Get returns a copy of the session. Expired entries read as not found even
// before the sweep reclaims them.
func (s *MemoryStore) Get(ctx context.Context, id string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.ExpiredAt(s.now(), s.ttl) {
		return session.Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Update applies patch to the session for id. Unknown or expired ids are a
// silent no-op.
func (s *MemoryStore) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.ExpiredAt(s.now(), s.ttl) {
		return nil
	}
	apply(sess, patch)
	return nil
}

// Sweep removes all sessions older than the TTL as of now.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sess := range s.sessions {
		if sess.ExpiredAt(now, s.ttl) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}
