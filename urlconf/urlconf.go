// Package urlconf manages named URL configurations for the application under
// test. A test may declare an override; installation and restoration are
// paired, and the resolution cache is cleared on both sides of the swap.
package urlconf

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/akheron/nosedjango/logger"
)

// Conf registers an URL configuration's routes on an engine.
type Conf func(*gin.Engine)

// Restore reverts an installed override.
type Restore func()

// Resolver holds the registered URL configurations and resolves the current
// root configuration to a request handler, caching the built engine until the
// configuration changes.
type Resolver struct {
	confs   map[string]Conf
	current string
	cached  *gin.Engine
	log     *logger.Logger
	mu      sync.Mutex
}

// NewResolver creates an empty resolver.
func NewResolver(log *logger.Logger) *Resolver {
	return &Resolver{
		confs: make(map[string]Conf),
		log:   log.WithComponent("urlconf"),
	}
}

// Register adds a named URL configuration.
func (r *Resolver) Register(name string, conf Conf) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.confs[name]; exists {
		return fmt.Errorf("urlconf %s already registered", name)
	}
	r.confs[name] = conf
	return nil
}

// SetRoot selects the root URL configuration.
func (r *Resolver) SetRoot(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.confs[name]; !exists {
		return fmt.Errorf("unknown urlconf %s", name)
	}
	r.current = name
	r.clearCacheLocked()
	return nil
}

// Root returns the name of the current root configuration.
func (r *Resolver) Root() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Install swaps in an override configuration, clearing the resolution cache,
// and returns a Restore that reinstates the saved root and clears the cache
// again. Errors propagate to the runner as test errors.
func (r *Resolver) Install(name string) (Restore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.confs[name]; !exists {
		return nil, fmt.Errorf("unknown urlconf %s", name)
	}

	saved := r.current
	r.current = name
	r.clearCacheLocked()
	r.log.Debug("URL configuration override installed", map[string]interface{}{
		"urlconf": name,
	})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.current = saved
		r.clearCacheLocked()
	}, nil
}

// ClearCache drops the cached handler so the next resolution rebuilds it.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearCacheLocked()
}

func (r *Resolver) clearCacheLocked() {
	r.cached = nil
}

// Handler builds (or returns the cached) request handler for the current root
// configuration.
func (r *Resolver) Handler() (*gin.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == "" {
		return nil, fmt.Errorf("no root urlconf configured")
	}
	if r.cached != nil {
		return r.cached, nil
	}

	conf, exists := r.confs[r.current]
	if !exists {
		return nil, fmt.Errorf("unknown urlconf %s", r.current)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	conf(engine)
	r.cached = engine
	return engine, nil
}
