// Package readiness decides when the session is settled enough for the
// first navigation decision: the store has hydrated and a short settle
// delay has passed.
package readiness

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/clock"
)

// DefaultSettleDelay is used when the configured delay is not positive.
const DefaultSettleDelay = 100 * time.Millisecond

// Barrier flips to ready exactly once per lifetime. Ready never goes back
// to false; a new foreground gets a new Barrier.
type Barrier struct {
	clock    clock.Clock
	delay    time.Duration
	hydrated <-chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	ready   bool
	timer   clock.Timer
	done    chan struct{}
	quit    chan struct{}
}

func New(clk clock.Clock, delay time.Duration, hydrated <-chan struct{}) *Barrier {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Barrier{
		clock:    clk,
		delay:    delay,
		hydrated: hydrated,
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Start begins waiting for hydration. Calling it more than once has no
// further effect.
func (b *Barrier) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.stopped {
		return
	}
	b.started = true

	select {
	case <-b.hydrated:
		b.armLocked()
	default:
		go b.awaitHydration()
	}
}

func (b *Barrier) awaitHydration() {
	select {
	case <-b.hydrated:
	case <-b.quit:
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.armLocked()
	}
}

func (b *Barrier) armLocked() {
	b.timer = b.clock.AfterFunc(b.delay, b.fire)
}

func (b *Barrier) fire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.ready {
		return
	}
	b.ready = true
	close(b.done)
}

// Ready reports whether the barrier has fired.
func (b *Barrier) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Done is closed when the barrier becomes ready. It is never closed if the
// barrier is stopped first.
func (b *Barrier) Done() <-chan struct{} { return b.done }

// Wait blocks until the barrier is ready or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels a pending settle timer. A stopped barrier never becomes
// ready, and an already ready barrier stays ready.
func (b *Barrier) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.quit)
	if b.timer != nil {
		b.timer.Stop()
	}
}
