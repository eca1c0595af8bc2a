package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glasswing/auth-relay/internal/crypto"
	"github.com/glasswing/auth-relay/internal/session"
	"github.com/redis/go-redis/v9"
)

// Ensure RedisStore implements the Store interface
var _ Store = (*RedisStore)(nil)

// RedisStore keeps sessions in Redis so multiple relay instances can serve
// the same login attempt: the callback may land on a different instance than
// the one that created the session. Eviction is delegated to Redis key
// expiry, so Sweep has nothing left to reclaim.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store with the given TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "authrelay:session:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Create registers a new pending session.
func (s *RedisStore) Create(ctx context.Context, provider, callbackScheme string) (session.Session, error) {
	id, err := crypto.GenerateSessionID()
	if err != nil {
		return session.Session{}, err
	}

	sess := session.Session{
		ID:             id,
		Provider:       provider,
		CallbackScheme: callbackScheme,
		CreatedAt:      time.Now(),
		Status:         session.StatusPending,
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return session.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	return sess, nil
}

// Get returns the session for id. Expired keys have already been dropped by
// Redis and read as not found.
func (s *RedisStore) Get(ctx context.Context, id string) (session.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return session.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

// Update applies patch to the session for id, preserving the key's remaining
// TTL. Unknown or already-expired ids are a silent no-op.
func (s *RedisStore) Update(ctx context.Context, id string, patch Patch) error {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	apply(&sess, patch)

	updated, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(id), updated, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Sweep is a no-op for Redis: key expiry already reclaims stale sessions.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
