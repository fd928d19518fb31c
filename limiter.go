package eventlimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keithlinneman/eventlimit/errstack"
	"github.com/keithlinneman/eventlimit/event"
	"github.com/keithlinneman/eventlimit/fingerprint"
)

// Fingerprinter derives a grouping key from an event. Implementations must
// be safe for concurrent use and must never fail - malformed events degrade
// to a fallback key.
type Fingerprinter interface {
	Extract(event.Event) string
}

// Limiter holds per-fingerprint window counters with a hard size bound and
// background eviction of idle groups. One Limiter is shared by all goroutines
// for the process lifetime.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*counter

	limit       int
	window      time.Duration
	maxEntries  int
	evictSample int
	idleTTL     time.Duration

	now       func() time.Time
	extractor Fingerprinter

	// onFirstDrop fires once per fingerprint per window, for logging.
	// onDrop fires on every dropped event, for counters. Kept separate so a
	// storm produces one log line but accurate metrics.
	onFirstDrop func(fp string)
	onDrop      func(fp string)
	onEvict     func(fp string)
}

// New creates a Limiter and starts the background idle sweep. The context
// cancels the sweep on shutdown. Misconfiguration is rejected here, not
// discovered per event.
func New(ctx context.Context, opts ...Option) (*Limiter, error) {
	l := &Limiter{
		entries:     make(map[string]*counter),
		limit:       DefaultLimit,
		window:      DefaultWindow,
		maxEntries:  DefaultMaxFingerprints,
		evictSample: DefaultEvictionSample,
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	if l.extractor == nil {
		l.extractor = fingerprint.Default()
	}
	if l.idleTTL == 0 {
		l.idleTTL = 3 * l.window
	}

	if err := l.validate(); err != nil {
		return nil, err
	}

	go l.sweep(ctx)
	return l, nil
}

func (l *Limiter) validate() error {
	var errs []error
	if l.limit < 1 {
		errs = append(errs, errstack.Newf("invalid limit %d (must be >= 1)", l.limit))
	}
	if l.window <= 0 {
		errs = append(errs, errstack.Newf("invalid window %v (must be > 0)", l.window))
	}
	if l.maxEntries < 1 {
		errs = append(errs, errstack.Newf("invalid max fingerprints %d (must be >= 1)", l.maxEntries))
	}
	if l.evictSample < 1 {
		errs = append(errs, errstack.Newf("invalid eviction sample %d (must be >= 1)", l.evictSample))
	}
	if l.window > 0 && l.idleTTL < l.window {
		errs = append(errs, errstack.Newf("invalid idle TTL %v (must be >= window %v)", l.idleTTL, l.window))
	}
	if l.now == nil {
		errs = append(errs, errstack.New("nil clock"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Allow reports whether ev is within its group's budget for the current
// window, counting it if so. This is the one call the reporting SDK's
// pre-send hook makes; false means discard without transmission.
func (l *Limiter) Allow(ev event.Event) bool {
	return l.AllowKey(l.extractor.Extract(ev))
}

// AllowKey is Allow for a pre-derived grouping key, e.g. an explicit
// fingerprint the SDK event already carries.
func (l *Limiter) AllowKey(key string) bool {
	now := l.now()
	c, evicted := l.counterFor(key, now)

	// callbacks run outside every lock: they may log or do other slow work
	if l.onEvict != nil {
		for _, fp := range evicted {
			l.onEvict(fp)
		}
	}

	allowed, firstDrop := c.allow(now, l.limit, l.window)
	if !allowed {
		if firstDrop && l.onFirstDrop != nil {
			l.onFirstDrop(key)
		}
		if l.onDrop != nil {
			l.onDrop(key)
		}
	}
	return allowed
}

// Len returns the number of tracked fingerprints.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// counterFor returns the live counter for key, creating it if absent. The
// fast path is a read lock only; creation re-checks under the write lock so
// two goroutines racing on a new key converge on one counter. Returns any
// fingerprints evicted to make room.
func (l *Limiter) counterFor(key string, now time.Time) (*counter, []string) {
	l.mu.RLock()
	c := l.entries[key]
	l.mu.RUnlock()
	if c != nil {
		c.touch(now)
		return c, nil
	}

	l.mu.Lock()
	if c = l.entries[key]; c != nil {
		// lost the creation race, reuse the winner's counter
		l.mu.Unlock()
		c.touch(now)
		return c, nil
	}

	var evicted []string
	for len(l.entries) >= l.maxEntries {
		victim, ok := l.oldestSampledLocked()
		if !ok {
			break
		}
		delete(l.entries, victim)
		evicted = append(evicted, victim)
	}

	c = newCounter(now)
	l.entries[key] = c
	l.mu.Unlock()
	return c, evicted
}

// oldestSampledLocked picks the least recently seen of up to evictSample
// entries. Map iteration order is randomized, so this is a cheap
// approximate-LRU: exact eviction order isn't required, only that eviction
// biases toward idle groups and keeps the map bounded. Caller holds mu.
func (l *Limiter) oldestSampledLocked() (string, bool) {
	var (
		victim string
		oldest int64
		found  bool
	)
	n := 0
	for fp, c := range l.entries {
		if seen := c.lastSeen.Load(); !found || seen < oldest {
			victim, oldest, found = fp, seen, true
		}
		n++
		if n >= l.evictSample {
			break
		}
	}
	return victim, found
}

// sweep periodically evicts fingerprints that haven't been seen within the
// idle TTL. Runs every TTL/2 to avoid holding stale entries much longer than
// intended; exits when ctx is cancelled.
func (l *Limiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := l.now()
			var evicted []string
			l.mu.Lock()
			for fp, c := range l.entries {
				if now.UnixNano()-c.lastSeen.Load() > int64(l.idleTTL) {
					delete(l.entries, fp)
					evicted = append(evicted, fp)
				}
			}
			l.mu.Unlock()
			if l.onEvict != nil {
				for _, fp := range evicted {
					l.onEvict(fp)
				}
			}
		}
	}
}
