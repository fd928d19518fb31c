package fingerprint

import (
	"regexp"
	"strings"

	"github.com/keithlinneman/eventlimit/errstack"
)

// Rule rewrites variable content out of a message before hashing, so
// interpolated values (IDs, addresses, counts) don't split one logical error
// into many groups.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// rule list separator for ParseRules, and the pattern/replacement separator
// for ParseRule. Chosen to survive flag/env plumbing without quoting games.
const (
	ruleSep   = ";;"
	ruleArrow = "=>"
)

var defaultRules = []Rule{
	// order matters: composite shapes before the number rule that would
	// otherwise eat their digits
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<uuid>"},
	{regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`), "<hex>"},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`), "<ip>"},
	{regexp.MustCompile(`"[^"]*"`), "<str>"},
	{regexp.MustCompile(`'[^']*'`), "<str>"},
	{regexp.MustCompile(`\b\d+\b`), "<n>"},
}

// DefaultRules returns the built-in normalization set (uuids, long hex runs,
// IPv4 addresses, quoted strings, integers). The returned slice is a copy;
// callers may reorder or extend it.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// ParseRule parses "pattern => replacement". The pattern is a Go regexp;
// the replacement may be empty (strip the match entirely).
func ParseRule(s string) (Rule, error) {
	pat, repl, found := strings.Cut(s, ruleArrow)
	if !found {
		return Rule{}, errstack.Newf("invalid rule %q (want \"pattern %s replacement\")", s, ruleArrow)
	}
	re, err := regexp.Compile(strings.TrimSpace(pat))
	if err != nil {
		return Rule{}, errstack.Wrapf(err, "invalid rule pattern %q", strings.TrimSpace(pat))
	}
	return Rule{Pattern: re, Replacement: strings.TrimSpace(repl)}, nil
}

// ParseRules parses a ";;"-separated rule list, e.g.
// "order [0-9]+ => order <n> ;; user \S+@\S+ => user <email>".
// An empty input returns (nil, nil), which New treats as "use defaults".
func ParseRules(s string) ([]Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ruleSep)
	out := make([]Rule, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		r, err := ParseRule(p)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
