package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionID(t *testing.T) {
	id, err := GenerateSessionID()
	require.NoError(t, err)

	// 32 bytes base64url without padding
	assert.Len(t, id, 43)
	assert.NotContains(t, id, "=")
	assert.NotContains(t, id, "+")
	assert.NotContains(t, id, "/")
}

func TestGenerateSessionIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id, err := GenerateSessionID()
		require.NoError(t, err)
		assert.False(t, seen[id], "session id must never repeat")
		seen[id] = true
	}
}
