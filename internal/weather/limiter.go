package weather

import (
	"context"
	"sync"
)

// limiter caps concurrent weather fetches. It is deliberately fair: an
// in-flight counter plus a FIFO queue of waiters, so late blocks cannot be
// starved by a buffered-channel free-for-all.
type limiter struct {
	mu      sync.Mutex
	max     int
	inUse   int
	waiters []chan struct{}
}

func newLimiter(max int) *limiter {
	if max < 1 {
		max = 1
	}
	return &limiter{max: max}
}

// Acquire blocks until a slot is free or ctx is done. Waiters are served
// in arrival order.
func (l *limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.inUse < l.max {
		l.inUse++
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.abandon(ready)
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the oldest waiter if any.
func (l *limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.waiters) > 0 {
		ready := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(ready) // slot ownership transfers to the waiter
		return
	}
	if l.inUse > 0 {
		l.inUse--
	}
}

// abandon removes a cancelled waiter; if its slot was already granted the
// grant is passed on.
func (l *limiter) abandon(ready chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == ready {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
	// Not found: Release already granted us the slot. Give it back.
	select {
	case <-ready:
		if len(l.waiters) > 0 {
			next := l.waiters[0]
			l.waiters = l.waiters[1:]
			close(next)
		} else if l.inUse > 0 {
			l.inUse--
		}
	default:
	}
}
