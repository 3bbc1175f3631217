package component

import (
	"context"
	"fmt"
	"testing"
)

// recorded is a test component that appends its lifecycle events to a shared log.
type recorded struct {
	name   string
	events *[]string
	failOn string
}

func (c *recorded) Name() string { return c.name }

func (c *recorded) Start(_ context.Context) error {
	*c.events = append(*c.events, "start:"+c.name)
	if c.failOn == "start" {
		return fmt.Errorf("%s start failed", c.name)
	}
	return nil
}

func (c *recorded) Stop(_ context.Context) error {
	*c.events = append(*c.events, "stop:"+c.name)
	if c.failOn == "stop" {
		return fmt.Errorf("%s stop failed", c.name)
	}
	return nil
}

func (c *recorded) Health(_ context.Context) Health {
	return Health{Name: c.name, Status: StatusHealthy}
}

// resettable adds TestComponent behavior on top of recorded.
type resettable struct {
	recorded
}

func (c *resettable) Reset(_ context.Context) error {
	*c.events = append(*c.events, "reset:"+c.name)
	return nil
}

func (c *resettable) Snapshot(_ context.Context) (interface{}, error) { return nil, nil }

func (c *resettable) Restore(_ context.Context, _ interface{}) error { return nil }

// TestRegistry_StartOrder tests that components start in registration order
func TestRegistry_StartOrder(t *testing.T) {
	var events []string
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Register(&recorded{name: name, events: &events}); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

// TestRegistry_StopReverseOrder tests that teardown runs in reverse order
func TestRegistry_StopReverseOrder(t *testing.T) {
	var events []string
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		_ = r.Register(&recorded{name: name, events: &events})
	}

	ctx := context.Background()
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}
	events = nil

	if err := r.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() failed: %v", err)
	}

	want := []string{"stop:c", "stop:b", "stop:a"}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

// TestRegistry_StopSkipsUnstarted tests that a failed start leaves later components unstopped
func TestRegistry_StopSkipsUnstarted(t *testing.T) {
	var events []string
	r := NewRegistry()
	_ = r.Register(&recorded{name: "a", events: &events})
	_ = r.Register(&recorded{name: "b", events: &events, failOn: "start"})
	_ = r.Register(&recorded{name: "c", events: &events})

	ctx := context.Background()
	if err := r.StartAll(ctx); err == nil {
		t.Fatal("StartAll() should fail when a component fails to start")
	}
	events = nil

	if err := r.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() failed: %v", err)
	}

	// only a actually started; b failed, c never ran
	want := []string{"stop:a"}
	if len(events) != 1 || events[0] != want[0] {
		t.Errorf("events = %v, want %v", events, want)
	}
}

// TestRegistry_StopAllCollectsErrors tests that teardown continues past failures
func TestRegistry_StopAllCollectsErrors(t *testing.T) {
	var events []string
	r := NewRegistry()
	_ = r.Register(&recorded{name: "a", events: &events})
	_ = r.Register(&recorded{name: "b", events: &events, failOn: "stop"})
	_ = r.Register(&recorded{name: "c", events: &events})

	ctx := context.Background()
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}
	events = nil

	err := r.StopAll(ctx)
	if err == nil {
		t.Error("StopAll() should report the failed stop")
	}

	want := []string{"stop:c", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("teardown should continue past failures, events = %v", events)
	}
}

// TestRegistry_DuplicateName tests rejection of duplicate component names
func TestRegistry_DuplicateName(t *testing.T) {
	var events []string
	r := NewRegistry()
	_ = r.Register(&recorded{name: "a", events: &events})

	if err := r.Register(&recorded{name: "a", events: &events}); err == nil {
		t.Error("Register() should reject a duplicate name")
	}
}

// TestRegistry_ResetAll tests that only started TestComponents are reset
func TestRegistry_ResetAll(t *testing.T) {
	var events []string
	r := NewRegistry()
	_ = r.Register(&recorded{name: "plain", events: &events})
	_ = r.Register(&resettable{recorded{name: "stateful", events: &events}})

	ctx := context.Background()
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}
	events = nil

	if err := r.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll() failed: %v", err)
	}

	if len(events) != 1 || events[0] != "reset:stateful" {
		t.Errorf("events = %v, want [reset:stateful]", events)
	}
}

// TestRegistry_Get tests lookup by name
func TestRegistry_Get(t *testing.T) {
	var events []string
	r := NewRegistry()
	c := &recorded{name: "a", events: &events}
	_ = r.Register(c)

	if got := r.Get("a"); got != Component(c) {
		t.Error("Get(a) should return the registered component")
	}
	if got := r.Get("missing"); got != nil {
		t.Error("Get(missing) should return nil")
	}
}
