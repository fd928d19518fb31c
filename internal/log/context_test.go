package log

import (
	"context"
	"testing"
)

func TestFromContext_ReturnsStoredLogger(t *testing.T) {
	lg := Nop()
	ctx := WithContext(context.Background(), lg)

	if got := FromContext(ctx); got != lg {
		t.Fatal("FromContext should return the stored logger")
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	got := FromContext(context.Background())
	if got == nil {
		t.Fatal("FromContext must never return nil")
	}
	// must be callable without panicking
	got.Info(context.Background(), "ignored")
}

func TestNop_AllMethodsSafe(t *testing.T) {
	lg := Nop()
	ctx := context.Background()

	lg.Debug(ctx, "a")
	lg.Info(ctx, "b", "k", 1)
	lg.Warn(ctx, "c")
	lg.Error(ctx, nil, "d")
	if err := lg.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if lg.With("k", "v") == nil {
		t.Fatal("With should return a logger")
	}
}
