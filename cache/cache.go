// Package cache forces an in-process, non-shared cache backend for the test
// run. An embedded miniredis instance is started per run and exposed through
// a go-redis client; cached state cannot leak between tests or processes
// because the store dies with the run and Reset flushes it between tests.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/logger"
)

// Backend is the run-scoped in-process cache. It implements
// component.TestComponent.
type Backend struct {
	mini    *miniredis.Miniredis
	client  *goredis.Client
	log     *logger.Logger
	started bool
	mu      sync.RWMutex
}

var _ component.TestComponent = (*Backend)(nil)

// NewBackend creates a new in-process cache backend.
func NewBackend(log *logger.Logger) *Backend {
	return &Backend{log: log.WithComponent("cache")}
}

// Client returns the go-redis client for the embedded store, or nil before
// Start.
func (b *Backend) Client() *goredis.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

// Addr returns the embedded store's address, used to override the project's
// configured cache address for the run.
func (b *Backend) Addr() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.mini == nil {
		return ""
	}
	return b.mini.Addr()
}

// Name returns the component name.
func (b *Backend) Name() string { return "cache" }

// Start launches the embedded store.
func (b *Backend) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("cache backend already started")
	}

	mini, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("failed to start in-process cache: %w", err)
	}

	b.mini = mini
	b.client = goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	b.started = true

	b.log.Debug("In-process cache started", map[string]interface{}{"addr": mini.Addr()})
	return nil
}

// Stop shuts down the embedded store.
func (b *Backend) Stop(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return nil
	}

	if b.client != nil {
		_ = b.client.Close()
	}
	if b.mini != nil {
		b.mini.Close()
	}
	b.started = false
	return nil
}

// Health pings the embedded store.
func (b *Backend) Health(ctx context.Context) component.Health {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		return component.Health{Name: b.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		return component.Health{Name: b.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return component.Health{Name: b.Name(), Status: component.StatusHealthy}
}

// Reset flushes all keys.
func (b *Backend) Reset(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		return fmt.Errorf("cache backend not started")
	}
	b.mini.FlushAll()
	return nil
}

// Snapshot captures all keys and their string values.
func (b *Backend) Snapshot(ctx context.Context) (interface{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.started {
		return nil, fmt.Errorf("cache backend not started")
	}

	snapshot := make(map[string]string)
	for _, key := range b.mini.Keys() {
		val, err := b.mini.Get(key)
		if err != nil {
			continue // non-string values are not snapshotted
		}
		snapshot[key] = val
	}
	return snapshot, nil
}

// Restore replaces the store contents with a previous snapshot.
func (b *Backend) Restore(_ context.Context, snapshot interface{}) error {
	snap, ok := snapshot.(map[string]string)
	if !ok {
		return fmt.Errorf("invalid cache snapshot type %T", snapshot)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.started {
		return fmt.Errorf("cache backend not started")
	}

	b.mini.FlushAll()
	for key, val := range snap {
		if err := b.mini.Set(key, val); err != nil {
			return err
		}
	}
	return nil
}
