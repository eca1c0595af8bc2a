package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a Store and counts Sweep calls
type countingStore struct {
	Store
	sweeps atomic.Int32
}

func (c *countingStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	c.sweeps.Add(1)
	return c.Store.Sweep(ctx, now)
}

func TestSweeperRunsOnInterval(t *testing.T) {
	counting := &countingStore{Store: NewMemoryStore(time.Minute)}
	sweeper := NewSweeper(counting, 10*time.Millisecond)

	sweeper.Start(context.Background())

	require.Eventually(t, func() bool {
		return counting.sweeps.Load() >= 3
	}, time.Second, 5*time.Millisecond, "sweeper should fire repeatedly without traffic")

	sweeper.Stop()
}

func TestSweeperFinalSweepOnStop(t *testing.T) {
	mem := NewMemoryStore(time.Millisecond)
	ctx := context.Background()

	sess, err := mem.Create(ctx, "google", "app://cb")
	require.NoError(t, err)

	sweeper := NewSweeper(mem, time.Hour)
	sweeper.Start(ctx)

	time.Sleep(5 * time.Millisecond)
	sweeper.Stop()

	mem.mu.RLock()
	_, stillThere := mem.sessions[sess.ID]
	mem.mu.RUnlock()
	assert.False(t, stillThere, "stop should run a final sweep")
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	counting := &countingStore{Store: NewMemoryStore(time.Minute)}
	sweeper := NewSweeper(counting, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	cancel()

	select {
	case <-sweeper.doneChan:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not exit after context cancellation")
	}

	before := counting.sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, counting.sweeps.Load(), "no sweeps after shutdown")
}

// Exercise the full eviction path through the sweeper against real time.
func TestSweeperEvictsExpiredSessions(t *testing.T) {
	mem := NewMemoryStore(20 * time.Millisecond)
	ctx := context.Background()

	sess, err := mem.Create(ctx, "google", "app://cb")
	require.NoError(t, err)

	sweeper := NewSweeper(mem, 10*time.Millisecond)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		_, err := mem.Get(ctx, sess.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)

	_, err = mem.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
