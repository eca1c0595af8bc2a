package store

import (
	"context"
	"time"

	"github.com/glasswing/auth-relay/internal/log"
)

// Sweeper periodically evicts expired sessions. It runs on its own schedule,
// independent of request traffic, so a relay with zero load still reclaims
// memory.
type Sweeper struct {
	store    Store
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweeper creates a sweeper that evicts expired sessions every interval.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	log.LogInfoWithFields("sweeper", "Starting session sweeper", map[string]any{
		"interval": sw.interval.String(),
	})

	go sw.run(ctx)
}

// Stop gracefully stops the sweep loop.
func (sw *Sweeper) Stop() {
	log.Logf("Stopping session sweeper...")
	close(sw.stopChan)
	<-sw.doneChan
	log.Logf("Session sweeper stopped")
}

func (sw *Sweeper) run(ctx context.Context) {
	defer close(sw.doneChan)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.sweep(ctx)
		case <-sw.stopChan:
			// Final sweep on shutdown
			sw.sweep(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	count, err := sw.store.Sweep(ctx, time.Now())
	if err != nil {
		log.LogErrorWithFields("sweeper", "Failed to sweep expired sessions", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("sweeper", "Evicted expired sessions", map[string]any{
			"count": count,
		})
	}
}
