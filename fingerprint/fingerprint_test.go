package fingerprint

import (
	"testing"

	"github.com/keithlinneman/eventlimit/event"
)

func newExtractor(t *testing.T, o Options) *Extractor {
	t.Helper()
	x, err := New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return x
}

func sampleEvent() event.Event {
	return event.Event{
		Type:    "*net.OpError",
		Message: "dial tcp 10.0.0.7:5432: connection refused",
		Frames: []event.Frame{
			{Module: "github.com/acme/app/store", Function: "(*DB).Query", File: "store.go", Line: 120},
			{Module: "github.com/acme/app/api", Function: "handleSearch", File: "api.go", Line: 55},
		},
	}
}

// New

func TestNew_NegativeDepthRejected(t *testing.T) {
	if _, err := New(Options{StackDepth: -1}); err == nil {
		t.Fatal("negative StackDepth should be a construction error")
	}
}

func TestNew_ZeroDepthUsesDefault(t *testing.T) {
	x := newExtractor(t, Options{})
	if x.depth != DefaultStackDepth {
		t.Fatalf("depth = %d, want %d", x.depth, DefaultStackDepth)
	}
}

func TestDefault_NeverNil(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}

// Determinism

func TestExtract_Deterministic(t *testing.T) {
	x := newExtractor(t, Options{})
	a := x.Extract(sampleEvent())
	b := x.Extract(sampleEvent())
	if a != b {
		t.Fatalf("same event produced different keys: %s vs %s", a, b)
	}
}

func TestExtract_DeterministicAcrossInstances(t *testing.T) {
	a := newExtractor(t, Options{StackDepth: 4}).Extract(sampleEvent())
	b := newExtractor(t, Options{StackDepth: 4}).Extract(sampleEvent())
	if a != b {
		t.Fatalf("fresh instances disagree: %s vs %s", a, b)
	}
}

// Grouping behavior

func TestExtract_LineNumbersIgnored(t *testing.T) {
	x := newExtractor(t, Options{})
	ev1 := sampleEvent()
	ev2 := sampleEvent()
	ev2.Frames[0].Line = 999
	ev2.Frames[1].File = "renamed.go"

	if x.Extract(ev1) != x.Extract(ev2) {
		t.Fatal("file/line changes must not change the key")
	}
}

func TestExtract_MessageVariablesFolded(t *testing.T) {
	x := newExtractor(t, Options{})
	ev1 := sampleEvent()
	ev2 := sampleEvent()
	ev1.Message = "dial tcp 10.0.0.7:5432: connection refused"
	ev2.Message = "dial tcp 192.168.4.20:6379: connection refused"

	if x.Extract(ev1) != x.Extract(ev2) {
		t.Fatal("interpolated addresses/ports should normalize to one group")
	}
}

func TestExtract_DistinctTypesDistinctKeys(t *testing.T) {
	x := newExtractor(t, Options{})
	ev1 := sampleEvent()
	ev2 := sampleEvent()
	ev2.Type = "*os.PathError"

	if x.Extract(ev1) == x.Extract(ev2) {
		t.Fatal("different types should not share a key")
	}
}

func TestExtract_DistinctStacksDistinctKeys(t *testing.T) {
	x := newExtractor(t, Options{})
	ev1 := sampleEvent()
	ev2 := sampleEvent()
	ev2.Frames[0].Function = "(*DB).Exec"

	if x.Extract(ev1) == x.Extract(ev2) {
		t.Fatal("different top frames should not share a key")
	}
}

func TestExtract_StackDepthLimitsFrames(t *testing.T) {
	x := newExtractor(t, Options{StackDepth: 1})
	ev1 := sampleEvent()
	ev2 := sampleEvent()
	// only frame[0] is inside the configured depth
	ev2.Frames[1].Function = "handleExport"

	if x.Extract(ev1) != x.Extract(ev2) {
		t.Fatal("frames beyond StackDepth should not affect the key")
	}
}

// Degradation

func TestExtract_EmptyEvent(t *testing.T) {
	x := newExtractor(t, Options{})
	key := x.Extract(event.Event{})
	if key == "" {
		t.Fatal("empty event must still produce a key")
	}
	if len(key) != 64 {
		t.Fatalf("key should be sha256 hex (64 chars), got %d", len(key))
	}
}

func TestExtract_LoggerGroupsNoStackEvents(t *testing.T) {
	x := newExtractor(t, Options{})
	ev1 := event.Event{Message: "something went wrong with a", Logger: "worker"}
	ev2 := event.Event{Message: "something went wrong with b", Logger: "worker"}
	ev3 := event.Event{Message: "something went wrong with a", Logger: "api"}

	if x.Extract(ev1) != x.Extract(ev2) {
		t.Fatal("same logger + same message shape should group together")
	}
	if x.Extract(ev1) == x.Extract(ev3) {
		t.Fatal("different loggers should not group together")
	}
}

func TestExtract_LoggerIgnoredWhenStackPresent(t *testing.T) {
	x := newExtractor(t, Options{})
	ev1 := sampleEvent()
	ev2 := sampleEvent()
	ev2.Logger = "background"

	if x.Extract(ev1) != x.Extract(ev2) {
		t.Fatal("logger should only matter for stackless events")
	}
}

// Default normalization rules

func TestDefaultRules_StripVariableContent(t *testing.T) {
	x := newExtractor(t, Options{})
	cases := []struct{ a, b string }{
		{"order 12345 not found", "order 99 not found"},
		{"token deadbeefdeadbeefdead rejected", "token 0123456789abcdef0123 rejected"},
		{"request 550e8400-e29b-41d4-a716-446655440000 failed", "request 6fa459ea-ee8a-3ca4-894e-db77e160355e failed"},
		{`bad key "alpha"`, `bad key "omega"`},
	}
	for _, c := range cases {
		if x.Extract(event.Event{Message: c.a}) != x.Extract(event.Event{Message: c.b}) {
			t.Errorf("messages should normalize to one group: %q vs %q", c.a, c.b)
		}
	}
}

func TestNilRulesMeansDefaults_EmptyDisables(t *testing.T) {
	withDefaults := newExtractor(t, Options{})
	noRules := newExtractor(t, Options{Rules: []Rule{}})

	ev1 := event.Event{Message: "order 1 failed"}
	ev2 := event.Event{Message: "order 2 failed"}

	if withDefaults.Extract(ev1) != withDefaults.Extract(ev2) {
		t.Fatal("default rules should fold the order id")
	}
	if noRules.Extract(ev1) == noRules.Extract(ev2) {
		t.Fatal("empty rule set should disable normalization")
	}
}

// ParseRule / ParseRules

func TestParseRule_Valid(t *testing.T) {
	r, err := ParseRule(`order [0-9]+ => order <n>`)
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if got := r.Pattern.ReplaceAllString("order 42 failed", r.Replacement); got != "order <n> failed" {
		t.Fatalf("applied rule = %q", got)
	}
}

func TestParseRule_MissingArrow(t *testing.T) {
	if _, err := ParseRule("no separator here"); err == nil {
		t.Fatal("rule without => should fail")
	}
}

func TestParseRule_BadPattern(t *testing.T) {
	if _, err := ParseRule(`[unclosed => x`); err == nil {
		t.Fatal("invalid regexp should fail at parse time")
	}
}

func TestParseRules_Multiple(t *testing.T) {
	rules, err := ParseRules(`a+ => A ;; b+ => B`)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
}

func TestParseRules_Empty(t *testing.T) {
	rules, err := ParseRules("   ")
	if err != nil {
		t.Fatalf("ParseRules empty: %v", err)
	}
	if rules != nil {
		t.Fatal("empty input should return nil (use defaults)")
	}
}
