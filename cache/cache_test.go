package cache

import (
	"context"
	"testing"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/logger"
)

// startBackend starts an in-process cache backend for a test.
func startBackend(t *testing.T) *Backend {
	t.Helper()

	b := NewBackend(logger.NewDefault())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

// TestBackend_StartExposesAddr tests that the embedded store gets an address
func TestBackend_StartExposesAddr(t *testing.T) {
	b := startBackend(t)

	if b.Addr() == "" {
		t.Error("Addr() should not be empty after Start")
	}
	if b.Client() == nil {
		t.Error("Client() should not be nil after Start")
	}
}

// TestBackend_SetGet tests basic round trip through the client
func TestBackend_SetGet(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	if err := b.Client().Set(ctx, "key", "value", 0).Err(); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got, err := b.Client().Get(ctx, "key").Result()
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != "value" {
		t.Errorf("Get() = %q, want %q", got, "value")
	}
}

// TestBackend_Reset tests that Reset flushes all keys
func TestBackend_Reset(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	if err := b.Client().Set(ctx, "stale", "1", 0).Err(); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := b.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	n, err := b.Client().Exists(ctx, "stale").Result()
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if n != 0 {
		t.Error("keys should not survive Reset")
	}
}

// TestBackend_SnapshotRestore tests state capture and restoration
func TestBackend_SnapshotRestore(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	if err := b.Client().Set(ctx, "keep", "v1", 0).Err(); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	snap, err := b.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	if err := b.Client().Set(ctx, "keep", "v2", 0).Err(); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := b.Client().Set(ctx, "extra", "x", 0).Err(); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if err := b.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	got, err := b.Client().Get(ctx, "keep").Result()
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got != "v1" {
		t.Errorf("restored value = %q, want %q", got, "v1")
	}

	n, err := b.Client().Exists(ctx, "extra").Result()
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if n != 0 {
		t.Error("post-snapshot key should not survive Restore")
	}
}

// TestBackend_RunsAreIsolated tests that two runs never share state
func TestBackend_RunsAreIsolated(t *testing.T) {
	ctx := context.Background()

	a := startBackend(t)
	bb := startBackend(t)

	if a.Addr() == bb.Addr() {
		t.Error("each run should get its own embedded store")
	}

	if err := a.Client().Set(ctx, "private", "1", 0).Err(); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	n, err := bb.Client().Exists(ctx, "private").Result()
	if err != nil {
		t.Fatalf("Exists() failed: %v", err)
	}
	if n != 0 {
		t.Error("state leaked between backends")
	}
}

// TestBackend_Health tests health before and after Start
func TestBackend_Health(t *testing.T) {
	b := NewBackend(logger.NewDefault())
	ctx := context.Background()

	if h := b.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("Health before Start = %q, want %q", h.Status, component.StatusUnhealthy)
	}

	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer b.Stop(ctx)

	if h := b.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("Health after Start = %q, want %q", h.Status, component.StatusHealthy)
	}
}
