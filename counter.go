package eventlimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// counter tracks one fingerprint's saturating event count inside a fixed
// window. Limit and window duration live on the owning Limiter; the counter
// only holds per-group state.
type counter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	// dropped tracks whether this window's first drop was already reported,
	// so the first-drop callback fires once per window, not once per event
	dropped bool

	// lastSeen is unix nanos of the most recent touch, read by eviction
	// without taking mu
	lastSeen atomic.Int64
}

func newCounter(now time.Time) *counter {
	c := &counter{windowStart: now}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// allow performs the combined rollover + saturating increment as one atomic
// step under the counter's own mutex. Two callers racing across a window
// boundary observe a single reset, never two.
//
// A clock that moved backward (now before windowStart) lands in the current
// window: the negative elapsed time never satisfies the rollover test.
func (c *counter) allow(now time.Time, limit int, window time.Duration) (allowed, firstDrop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.windowStart) >= window {
		c.windowStart = now
		c.count = 0
		c.dropped = false
	}

	if c.count < limit {
		c.count++
		return true, false
	}
	// saturate: count stays at limit, it does not keep climbing
	if !c.dropped {
		c.dropped = true
		return false, true
	}
	return false, false
}

func (c *counter) touch(now time.Time) {
	c.lastSeen.Store(now.UnixNano())
}
