package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		paths []string
		want  string
	}{
		{
			name:  "simple join",
			base:  "https://app.example.com",
			paths: []string{"api", "auth", "session"},
			want:  "https://app.example.com/api/auth/session",
		},
		{
			name:  "trailing slash on base",
			base:  "https://app.example.com/",
			paths: []string{"auth/callback"},
			want:  "https://app.example.com/auth/callback",
		},
		{
			name:  "base with path",
			base:  "https://app.example.com/v2",
			paths: []string{"api/session"},
			want:  "https://app.example.com/v2/api/session",
		},
		{
			name:  "no extra paths",
			base:  "https://app.example.com/api",
			paths: nil,
			want:  "https://app.example.com/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinPathInvalidBase(t *testing.T) {
	_, err := JoinPath("://not-a-url", "path")
	assert.Error(t, err)
}
