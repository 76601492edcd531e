// Package reapply schedules the single corrective re-application some
// tweaks need: Steam re-applies its own setting asynchronously shortly after
// a change from script, so the tweak applies its value once more after a
// delay. There is exactly one retry and no backoff.
package reapply

import (
	"context"
	"sync"
	"time"

	"github.com/vk/steamtweaks/internal/ctxlog"
)

// DefaultDelay is how long Steam has been observed to take before it
// clobbers a freshly written overlay setting.
const DefaultDelay = 10 * time.Second

// Pending is a scheduled re-application.
type Pending struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
	started   bool
	fired     chan struct{}
}

// After runs fn once after delay, in its own goroutine. The context passed
// to fn keeps ctx's values but not its cancellation.
func After(ctx context.Context, delay time.Duration, fn func(ctx context.Context) error) *Pending {
	p := &Pending{fired: make(chan struct{})}
	detached := context.WithoutCancel(ctx)
	p.timer = time.AfterFunc(delay, func() {
		defer close(p.fired)
		p.mu.Lock()
		if p.cancelled {
			p.mu.Unlock()
			return
		}
		p.started = true
		p.mu.Unlock()
		if err := fn(detached); err != nil {
			ctxlog.FromContext(detached).Warn("Corrective re-application failed.", "error", err)
		}
	})
	return p
}

// Cancel prevents the re-application if it has not started yet and reports
// whether it did so. Cancel on a nil Pending is a no-op.
func (p *Pending) Cancel() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled || p.started {
		return false
	}
	p.cancelled = true
	if p.timer.Stop() {
		close(p.fired)
	}
	return true
}

// Fired is closed once the re-application has run or has been cancelled.
func (p *Pending) Fired() <-chan struct{} {
	return p.fired
}

// Stop cancels the re-application and, if it already started, waits for it
// to finish or for ctx to end. Stop on a nil Pending returns nil.
func (p *Pending) Stop(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.Cancel()
	select {
	case <-p.fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
