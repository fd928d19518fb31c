package sentryhook

import (
	"context"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/keithlinneman/eventlimit"
	"github.com/keithlinneman/eventlimit/errstack"
	"github.com/keithlinneman/eventlimit/event"
)

func newTestLimiter(t *testing.T, opts ...eventlimit.Option) *eventlimit.Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	defaults := []eventlimit.Option{
		eventlimit.WithLimit(2),
		eventlimit.WithWindow(time.Hour),
	}
	l, err := eventlimit.New(ctx, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func exceptionEvent(typ, value string) *sentry.Event {
	ev := sentry.NewEvent()
	ev.Exception = []sentry.Exception{{
		Type:  typ,
		Value: value,
		Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{
			{Module: "github.com/acme/app", Function: "run", Lineno: 10},
			{Module: "github.com/acme/app/store", Function: "(*DB).Query", Lineno: 42},
		}},
	}}
	return ev
}

// BeforeSend

func TestBeforeSend_PassesWithinBudget(t *testing.T) {
	hook := BeforeSend(newTestLimiter(t))

	ev := exceptionEvent("*net.OpError", "connection refused")
	if hook(ev, nil) == nil {
		t.Fatal("first event should pass through")
	}
}

func TestBeforeSend_DropsOverBudget(t *testing.T) {
	hook := BeforeSend(newTestLimiter(t, eventlimit.WithLimit(2)))

	for i := 0; i < 2; i++ {
		if hook(exceptionEvent("*net.OpError", "connection refused"), nil) == nil {
			t.Fatalf("event %d should pass", i+1)
		}
	}
	if hook(exceptionEvent("*net.OpError", "connection refused"), nil) != nil {
		t.Fatal("third event of the group should be dropped")
	}
}

func TestBeforeSend_DistinctIssuesIndependent(t *testing.T) {
	hook := BeforeSend(newTestLimiter(t, eventlimit.WithLimit(1)))

	if hook(exceptionEvent("*net.OpError", "connection refused"), nil) == nil {
		t.Fatal("first issue should pass")
	}
	if hook(exceptionEvent("*net.OpError", "connection refused"), nil) != nil {
		t.Fatal("repeat of first issue should be dropped")
	}
	if hook(exceptionEvent("*os.PathError", "open missing: no such file"), nil) == nil {
		t.Fatal("different issue should have its own budget")
	}
}

func TestBeforeSend_NilEventPassesThrough(t *testing.T) {
	hook := BeforeSend(newTestLimiter(t))
	if got := hook(nil, nil); got != nil {
		t.Fatal("nil event should be returned as-is (nil)")
	}
	// and must not have counted against anything or panicked
}

type panickingFingerprinter struct{}

func (panickingFingerprinter) Extract(event.Event) string { panic("boom") }

func TestBeforeSend_FailsOpenOnPanic(t *testing.T) {
	l := newTestLimiter(t, eventlimit.WithFingerprinter(panickingFingerprinter{}))
	hook := BeforeSend(l)

	ev := exceptionEvent("*net.OpError", "connection refused")
	if hook(ev, nil) != ev {
		t.Fatal("a panicking decision must pass the event through, not lose it")
	}
}

// Explicit fingerprint

func TestAllow_ExplicitFingerprintWins(t *testing.T) {
	l := newTestLimiter(t, eventlimit.WithLimit(1))

	ev1 := exceptionEvent("*net.OpError", "connection refused")
	ev1.Fingerprint = []string{"payments", "timeout"}
	ev2 := exceptionEvent("*os.PathError", "totally different")
	ev2.Fingerprint = []string{"payments", "timeout"}

	if !Allow(l, ev1, nil) {
		t.Fatal("first should pass")
	}
	// same explicit fingerprint shares the budget despite different contents
	if Allow(l, ev2, nil) {
		t.Fatal("same explicit fingerprint should share the budget")
	}
}

// Hint with captured stack

func TestAllow_HintOriginalExceptionGroups(t *testing.T) {
	l := newTestLimiter(t, eventlimit.WithLimit(1))

	err1 := errstack.New("upstream closed with code 502")
	err2 := errstack.New("upstream closed with code 504")

	ev := sentry.NewEvent()
	if !Allow(l, ev, &sentry.EventHint{OriginalException: err1}) {
		t.Fatal("first should pass")
	}
	// same type + normalized message + same capture site = one group
	if Allow(l, ev, &sentry.EventHint{OriginalException: err2}) {
		t.Fatal("same issue via hint should share the budget")
	}
}
