// Package errstack provides error constructors that capture program counters
// at the point of creation. The captured stacks feed event capture
// (event.FromError) and log stack enrichment; they are never rendered on the
// error message itself.
package errstack

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }
func (w *withStack) IsErrstackWrapper()  {}

func captureStack(skip int) []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	// value of 2 means skip runtime.Callers + captureStack
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func withStackSkip(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: captureStack(skip)}
}

// WithStack annotates err with a stack captured at the call site.
func WithStack(err error) error { return withStackSkip(err, 2) }

// EnsureTrace annotates err with a stack only if no error in the chain
// already carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return withStackSkip(err, 2)
}

type wrap struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrap) Error() string      { return w.msg + ": " + w.err.Error() }
func (w *wrap) Unwrap() error      { return w.err }
func (w *wrap) PC() uintptr        { return w.pc }
func (w *wrap) IsErrstackWrapper() {}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	// value of 2 means skip runtime.Callers + callerPC
	if n := runtime.Callers(2+skip, pcs[:]); n == 0 {
		return 0
	}
	return pcs[0]
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: msg, pc: callerPC(1)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrap{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

func New(msg string) error             { return withStackSkip(errors.New(msg), 2) }
func Newf(f string, args ...any) error { return withStackSkip(fmt.Errorf(f, args...), 2) }

type hasStack interface{ StackPCs() []uintptr }

// StackPCs returns the program counters captured by the first stack-carrying
// error in the chain, or nil if none carries one.
func StackPCs(err error) []uintptr {
	var hs hasStack
	if errors.As(err, &hs) && hs != nil {
		return hs.StackPCs()
	}
	return nil
}

// TypeName reports the concrete type of the first non-wrapper error in the
// chain. Errstack wrappers and fmt.Errorf %w wrappers are skipped so the
// surfaced type reflects the underlying error, not the decoration.
func TypeName(err error) string {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := reflect.TypeOf(e)
		if t == nil {
			continue
		}
		u := t
		for u.Kind() == reflect.Ptr {
			u = u.Elem()
		}
		pkg := u.PkgPath()
		name := u.Name()
		if strings.HasSuffix(pkg, "/errstack") {
			continue
		}
		if pkg == "fmt" && name == "wrapError" {
			continue
		}
		return t.String()
	}
	return fmt.Sprintf("%T", err)
}
