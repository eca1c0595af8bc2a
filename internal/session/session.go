package session

import "time"

// Status tracks a login attempt through its lifecycle. Transitions only move
// forward: pending -> callback_received -> complete. A session that never
// reaches complete is evicted by the TTL sweep and becomes indistinguishable
// from one that never existed.
type Status string

const (
	StatusPending          Status = "pending"
	StatusCallbackReceived Status = "callback_received"
	StatusComplete         Status = "complete"
)

// rank orders statuses for monotonicity checks
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusCallbackReceived:
		return 1
	case StatusComplete:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next preserves monotonicity.
// Staying at the same status is allowed (idempotent callbacks re-apply it).
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() >= s.rank() && next.rank() >= 0 && s.rank() >= 0
}

// Identity holds user attributes resolved from the identity provider's
// introspection endpoint. Resolution is best-effort; sessions complete
// without it.
type Identity struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is one tracked login attempt.
type Session struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	CallbackScheme string    `json:"callback_scheme"`
	CreatedAt      time.Time `json:"created_at"`
	Status         Status    `json:"status"`
	Credential     string    `json:"credential,omitempty"`
	Identity       *Identity `json:"identity,omitempty"`
}

// ExpiredAt reports whether the session has outlived ttl at the given time.
func (s Session) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}
