// Package fingerprint derives a stable grouping key from an error event.
//
// The key approximates server-side issue grouping: events with the same error
// type, the same message shape, and the same top stack frames land in the
// same group. It is deliberately approximate - exact parity with the backend
// grouper is a non-goal, and collisions only mean two errors share a budget.
// Tuning happens through configuration (stack depth, normalization rules),
// not algorithm changes.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/keithlinneman/eventlimit/errstack"
	"github.com/keithlinneman/eventlimit/event"
)

// DefaultStackDepth is how many innermost frames feed the key when no depth
// is configured. Deeper frames churn with refactors far from the error site.
const DefaultStackDepth = 8

// fallback type label for events that carry no type at all
const unknownType = "unknown"

type Options struct {
	// StackDepth is the number of innermost frames included in the key.
	// 0 means DefaultStackDepth; negative is a construction error.
	StackDepth int

	// Rules are applied to the message, in order, before hashing.
	// Nil means DefaultRules(). An explicitly empty non-nil slice disables
	// normalization entirely.
	Rules []Rule
}

// Extractor derives grouping keys. It holds no mutable state and is safe for
// concurrent use.
type Extractor struct {
	depth int
	rules []Rule
}

func New(o Options) (*Extractor, error) {
	if o.StackDepth < 0 {
		return nil, errstack.Newf("invalid stack depth %d (must be >= 0)", o.StackDepth)
	}
	depth := o.StackDepth
	if depth == 0 {
		depth = DefaultStackDepth
	}
	rules := o.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	return &Extractor{depth: depth, rules: rules}, nil
}

// Default returns an Extractor with default depth and rules.
func Default() *Extractor {
	x, _ := New(Options{})
	return x
}

// Extract returns the grouping key for ev. It is a total function: malformed
// or empty events degrade to a fallback key instead of failing, because a
// reporting decision must always be reachable.
func (x *Extractor) Extract(ev event.Event) string {
	var b strings.Builder

	typ := ev.Type
	if typ == "" {
		typ = unknownType
	}
	b.WriteString(typ)
	b.WriteByte('\n')
	b.WriteString(x.normalize(ev.Message))
	b.WriteByte('\n')

	for i, fr := range ev.Frames {
		if i >= x.depth {
			break
		}
		// module + function only: source lines are too volatile to group on
		if fr.Module != "" {
			b.WriteString(fr.Module)
			b.WriteByte('.')
		}
		b.WriteString(fr.Function)
		b.WriteByte('\n')
	}
	if len(ev.Frames) == 0 && ev.Logger != "" {
		b.WriteString("logger:")
		b.WriteString(ev.Logger)
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func (x *Extractor) normalize(msg string) string {
	for _, r := range x.rules {
		msg = r.Pattern.ReplaceAllString(msg, r.Replacement)
	}
	return msg
}
