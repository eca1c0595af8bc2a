package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateSessionID creates a cryptographically secure random session identifier.
// Returns a base64 URL-encoded string with 256 bits of entropy. The id is the
// sole correlation key between the desktop client and the relay, and stands in
// as the credential when the provider cookie is missing, so it must be
// unguessable.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
