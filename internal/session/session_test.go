package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusCallbackReceived, true},
		{StatusPending, StatusComplete, true},
		{StatusCallbackReceived, StatusComplete, true},
		{StatusComplete, StatusComplete, true},
		{StatusComplete, StatusPending, false},
		{StatusComplete, StatusCallbackReceived, false},
		{StatusCallbackReceived, StatusPending, false},
		{StatusPending, Status("bogus"), false},
		{Status("bogus"), StatusComplete, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestExpiredAt(t *testing.T) {
	created := time.Now()
	s := Session{CreatedAt: created}

	assert.False(t, s.ExpiredAt(created.Add(59*time.Second), time.Minute))
	assert.False(t, s.ExpiredAt(created.Add(time.Minute), time.Minute))
	assert.True(t, s.ExpiredAt(created.Add(61*time.Second), time.Minute))
}
