package eventlimit

import "time"

// Defaults match the original deployment's budget: at most 100 events per
// issue per 15-minute window, up to 10k tracked issues.
const (
	DefaultLimit           = 100
	DefaultWindow          = 15 * time.Minute
	DefaultMaxFingerprints = 10000
	DefaultEvictionSample  = 8
)

type Option func(*Limiter)

// WithLimit sets the per-fingerprint budget: how many events of one group
// pass per window before the rest are dropped.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithWindow sets the fixed window duration the budget applies to.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithMaxFingerprints caps how many fingerprints are tracked at once. When
// the cap is reached, the least recently seen of a small sample is evicted;
// an evicted group simply restarts counting on its next occurrence.
func WithMaxFingerprints(n int) Option {
	return func(l *Limiter) { l.maxEntries = n }
}

// WithEvictionSample sets how many entries the eviction scan samples when
// picking a victim. Larger samples evict closer to true LRU at slightly
// higher insert cost.
func WithEvictionSample(n int) Option {
	return func(l *Limiter) { l.evictSample = n }
}

// WithIdleTTL controls how long an idle fingerprint stays tracked before the
// background sweep evicts it. Must be at least one window; defaults to three.
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithFingerprinter replaces the default grouping-key extractor.
func WithFingerprinter(f Fingerprinter) Option {
	return func(l *Limiter) { l.extractor = f }
}

// WithOnFirstDrop sets a callback for the first drop of a fingerprint in a
// window, used for logging. Intentionally separate from WithOnDrop so a
// storm produces one log line while counters stay accurate.
func WithOnFirstDrop(fn func(fp string)) Option {
	return func(l *Limiter) { l.onFirstDrop = fn }
}

// WithOnDrop sets a callback for every dropped event, used for incrementing
// prometheus counters.
func WithOnDrop(fn func(fp string)) Option {
	return func(l *Limiter) { l.onDrop = fn }
}

// WithOnEvict sets a callback for every evicted fingerprint (capacity or
// idle sweep).
func WithOnEvict(fn func(fp string)) Option {
	return func(l *Limiter) { l.onEvict = fn }
}
