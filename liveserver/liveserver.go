// Package liveserver embeds an HTTP server around the application under test
// for browser-driven end-to-end tests. The server starts on the first test
// that requests it and is stopped exactly once at run finalization, no matter
// how many tests asked for it.
package liveserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/settings"
)

// HandlerSource resolves the request handler to serve. It is consulted when
// the server actually starts, so URL-configuration overrides installed before
// the first live-server test are honored.
type HandlerSource func() (http.Handler, error)

// Server is the demand-started live HTTP server. It implements
// component.Component; Start is a no-op because the server only runs once a
// test requests it.
type Server struct {
	cfg     settings.LiveServerConfig
	source  HandlerSource
	log     *logger.Logger
	httpSrv *http.Server
	addr    string
	running bool
	mu      sync.Mutex
}

var _ component.Component = (*Server)(nil)

// New creates a live server for the given configuration and handler source.
func New(cfg settings.LiveServerConfig, source HandlerSource, log *logger.Logger) *Server {
	return &Server{
		cfg:    cfg,
		source: source,
		log:    log.WithComponent("liveserver"),
	}
}

// Name returns the component name.
func (s *Server) Name() string { return "live-server" }

// Start is a no-op; the server is started on demand by EnsureStarted.
func (s *Server) Start(_ context.Context) error { return nil }

// EnsureStarted starts the server if it is not already running. The listener
// is bound synchronously so the caller knows the port is ready; serving
// continues in a goroutine. Repeated calls across tests are no-ops: one
// server per run.
func (s *Server) EnsureStarted(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	handler, err := s.source()
	if err != nil {
		return fmt.Errorf("live server has no handler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("live server failed to bind %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.addr = listener.Addr().String()
	s.running = true

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Live server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("Live server started", map[string]interface{}{"addr": s.addr})
	return nil
}

// Running reports whether the server is listening.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound address, or empty before the first start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop shuts the server down gracefully if it ever started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("live server shutdown error: %w", err)
	}
	s.log.Info("Live server stopped")
	return nil
}

// Health reports whether the server is listening.
func (s *Server) Health(_ context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return component.Health{Name: s.Name(), Status: component.StatusDisabled, Message: "not requested"}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}
