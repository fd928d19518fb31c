package main

import (
	"context"

	"github.com/getsentry/sentry-go"

	"github.com/keithlinneman/eventlimit/errstack"
	"github.com/keithlinneman/eventlimit/internal/log"
)

// reporter routes captures either through the real sentry SDK (which runs
// the BeforeSend hook itself) or, with no DSN, through the hook directly so
// every decision path still gets exercised in dry runs.
type reporter struct {
	enabled bool
	hook    func(*sentry.Event, *sentry.EventHint) *sentry.Event
	L       log.Logger
}

func (r *reporter) reportError(ctx context.Context, err error) {
	if r.enabled {
		sentry.CaptureException(err)
		return
	}
	ev := sentry.NewEvent()
	ev.Level = sentry.LevelError
	ev.Exception = []sentry.Exception{{
		Type:  errstack.TypeName(err),
		Value: err.Error(),
	}}
	out := r.hook(ev, &sentry.EventHint{OriginalException: err})
	r.logDecision(ctx, out != nil, err.Error())
}

func (r *reporter) reportMessage(ctx context.Context, logger, msg string) {
	if r.enabled {
		sentry.CaptureMessage(msg)
		return
	}
	ev := sentry.NewEvent()
	ev.Level = sentry.LevelError
	ev.Message = msg
	ev.Logger = logger
	out := r.hook(ev, nil)
	r.logDecision(ctx, out != nil, msg)
}

func (r *reporter) logDecision(ctx context.Context, allowed bool, msg string) {
	if allowed {
		r.L.Debug(ctx, "event allowed (dry run)", "message", msg)
	} else {
		r.L.Debug(ctx, "event dropped (dry run)", "message", msg)
	}
}
