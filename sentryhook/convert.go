package sentryhook

import (
	"github.com/getsentry/sentry-go"

	"github.com/keithlinneman/eventlimit/event"
)

// Convert maps a sentry event onto the limiter's event shape. It is total:
// nil or empty events degrade to the zero Event, which fingerprints to the
// fallback group downstream.
func Convert(ev *sentry.Event) event.Event {
	if ev == nil {
		return event.Event{}
	}
	out := event.Event{Message: ev.Message, Logger: ev.Logger}

	// sentry orders exception causes oldest first; the last entry is the
	// error that was actually captured. Its stacktrace may sit on an inner
	// cause, so search backwards for the nearest one.
	if n := len(ev.Exception); n > 0 {
		last := ev.Exception[n-1]
		out.Type = last.Type
		if last.Value != "" {
			out.Message = last.Value
		}
		for i := n - 1; i >= 0; i-- {
			if st := ev.Exception[i].Stacktrace; st != nil && len(st.Frames) > 0 {
				out.Frames = convertFrames(st.Frames)
				break
			}
		}
	}

	// logging-integration events carry the stack on a thread instead
	if len(out.Frames) == 0 {
		if st := threadStacktrace(ev.Threads); st != nil {
			out.Frames = convertFrames(st.Frames)
		}
	}
	return out
}

// sentry frames are ordered oldest call first; the limiter wants innermost
// (most recent call) first
func convertFrames(frames []sentry.Frame) []event.Frame {
	out := make([]event.Frame, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		mod := fr.Module
		if mod == "" {
			mod = fr.Package
		}
		file := fr.AbsPath
		if file == "" {
			file = fr.Filename
		}
		out = append(out, event.Frame{
			Module:   mod,
			Function: fr.Function,
			File:     file,
			Line:     fr.Lineno,
		})
	}
	return out
}

func threadStacktrace(threads []sentry.Thread) *sentry.Stacktrace {
	var fallback *sentry.Stacktrace
	for i := range threads {
		th := threads[i]
		if th.Stacktrace == nil || len(th.Stacktrace.Frames) == 0 {
			continue
		}
		if th.Crashed {
			return th.Stacktrace
		}
		if th.Current && fallback == nil {
			fallback = th.Stacktrace
		}
		if fallback == nil {
			fallback = th.Stacktrace
		}
	}
	return fallback
}
