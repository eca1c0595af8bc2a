package ioutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("boom")
}

func TestReadAllLimited(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		body, err := ReadAllLimited(strings.NewReader("hello"), 10)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("exactly at limit", func(t *testing.T) {
		body, err := ReadAllLimited(strings.NewReader("hello"), 5)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := ReadAllLimited(strings.NewReader("hello world"), 5)
		assert.Error(t, err)
	})
}

func TestReadLimited(t *testing.T) {
	assert.Equal(t, "hello", ReadLimited(strings.NewReader("hello world"), 5))
	assert.Contains(t, ReadLimited(failingReader{}, 5), "<unreadable:")
}
