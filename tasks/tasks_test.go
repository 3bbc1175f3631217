package tasks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/akheron/nosedjango/logger"
)

// TestQueue_EagerRunsInline tests synchronous execution in eager mode
func TestQueue_EagerRunsInline(t *testing.T) {
	q := NewQueue(true, logger.NewDefault())

	ran := false
	err := q.Enqueue(context.Background(), Task{
		Name: "send-email",
		Run:  func(context.Context) error { ran = true; return nil },
	})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	if !ran {
		t.Error("eager task should run before Enqueue returns")
	}
}

// TestQueue_EagerPropagatesError tests that a failed eager task surfaces its error
func TestQueue_EagerPropagatesError(t *testing.T) {
	q := NewQueue(true, logger.NewDefault())

	wantErr := fmt.Errorf("smtp unreachable")
	err := q.Enqueue(context.Background(), Task{
		Name: "send-email",
		Run:  func(context.Context) error { return wantErr },
	})
	if err != wantErr {
		t.Errorf("Enqueue() error = %v, want %v", err, wantErr)
	}
}

// TestQueue_ForceEager tests the scoped mode switch and its restore
func TestQueue_ForceEager(t *testing.T) {
	q := NewQueue(false, logger.NewDefault())

	restore := q.ForceEager()
	if !q.Eager() {
		t.Error("queue should be eager after ForceEager")
	}

	restore()
	if q.Eager() {
		t.Error("restore should reinstate the previous mode")
	}
}

// TestQueue_DeferredRequiresStart tests that worker mode rejects tasks before Start
func TestQueue_DeferredRequiresStart(t *testing.T) {
	q := NewQueue(false, logger.NewDefault())

	err := q.Enqueue(context.Background(), Task{Name: "t", Run: func(context.Context) error { return nil }})
	if err == nil {
		t.Error("Enqueue() in worker mode should fail before Start")
	}
}

// TestQueue_WorkerExecutesDeferredTasks tests background execution in worker mode
func TestQueue_WorkerExecutesDeferredTasks(t *testing.T) {
	q := NewQueue(false, logger.NewDefault())
	ctx := context.Background()

	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	done := make(chan struct{})
	err := q.Enqueue(ctx, Task{
		Name: "deferred",
		Run:  func(context.Context) error { close(done); return nil },
	})
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred task never ran")
	}

	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

// TestQueue_StopIdempotent tests that stopping an unstarted queue is a no-op
func TestQueue_StopIdempotent(t *testing.T) {
	q := NewQueue(false, logger.NewDefault())

	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on unstarted queue failed: %v", err)
	}
}
