package event

import (
	"runtime"
	"strings"

	"github.com/keithlinneman/eventlimit/errstack"
)

// FromError builds an Event from an error, using any stack captured by
// errstack constructors in the chain. Errors without a captured stack yield
// an Event with type and message only.
func FromError(err error) Event {
	if err == nil {
		return Event{}
	}
	return Event{
		Type:    errstack.TypeName(err),
		Message: err.Error(),
		Frames:  framesFromPCs(errstack.StackPCs(err)),
	}
}

func framesFromPCs(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if fr.Function != "" && !skipFrame(fr.Function) {
			mod, fn := SplitFunction(fr.Function)
			out = append(out, Frame{
				Module:   mod,
				Function: fn,
				File:     fr.File,
				Line:     fr.Line,
			})
		}
		if !more {
			break
		}
	}
	return out
}

// runtime internals and the capture machinery itself are noise for grouping
func skipFrame(fn string) bool {
	if strings.HasPrefix(fn, "runtime.") {
		return true
	}
	return strings.Contains(fn, "/errstack.")
}

// SplitFunction splits a runtime function name into its package path and the
// in-package function identifier, e.g.
// "github.com/acme/app/store.(*DB).Get" -> ("github.com/acme/app/store", "(*DB).Get").
func SplitFunction(full string) (module, fn string) {
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return "", full
	}
	dot += slash + 1
	return full[:dot], full[dot+1:]
}
