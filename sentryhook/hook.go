// Package sentryhook adapts an eventlimit.Limiter to the sentry-go SDK's
// BeforeSend hook. Returning nil from the hook makes the SDK discard the
// event without transmission; returning the event lets the SDK proceed with
// its own transport and batching.
package sentryhook

import (
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/keithlinneman/eventlimit"
	"github.com/keithlinneman/eventlimit/errstack"
	"github.com/keithlinneman/eventlimit/event"
)

// BeforeSend returns a sentry-go BeforeSend hook enforcing l's budgets.
//
// The hook fails open: if the decision itself panics, the event is passed
// through rather than lost, because a rate limiter that can swallow events
// on its own bugs is worse than no rate limiter.
func BeforeSend(l *eventlimit.Limiter) func(*sentry.Event, *sentry.EventHint) *sentry.Event {
	return func(ev *sentry.Event, hint *sentry.EventHint) (out *sentry.Event) {
		defer func() {
			if recover() != nil {
				out = ev
			}
		}()
		if Allow(l, ev, hint) {
			return ev
		}
		return nil
	}
}

// Allow decides for a sentry event. An explicit fingerprint on the event is
// honored as the grouping key directly; otherwise the original error's
// captured stack (when the hint carries one) or the event's own exception
// data is fingerprinted.
func Allow(l *eventlimit.Limiter, ev *sentry.Event, hint *sentry.EventHint) bool {
	if ev == nil {
		return true
	}
	if len(ev.Fingerprint) > 0 {
		return l.AllowKey(strings.Join(ev.Fingerprint, "\n"))
	}
	if hint != nil && hint.OriginalException != nil {
		if pcs := errstack.StackPCs(hint.OriginalException); len(pcs) > 0 {
			return l.Allow(event.FromError(hint.OriginalException))
		}
	}
	return l.Allow(Convert(ev))
}
