// Package xvfb starts an X virtual framebuffer for headless browser testing.
package xvfb

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/process"
)

// screen geometry handed to the framebuffer.
const screenGeometry = "1024x768x24"

// Framebuffer runs the X virtual framebuffer as a run-scoped subprocess and
// exports DISPLAY so browser drivers pick it up. It implements
// component.Component.
type Framebuffer struct {
	display string
	log     *logger.Logger
	handle  *process.Handle
	oldDisp string
	hadDisp bool
	mu      sync.Mutex
}

var _ component.Component = (*Framebuffer)(nil)

// New creates a framebuffer for the given display number (e.g. "99").
func New(display string, log *logger.Logger) *Framebuffer {
	return &Framebuffer{
		display: display,
		log:     log.WithComponent("xvfb"),
	}
}

// Name returns the component name.
func (f *Framebuffer) Name() string { return "xvfb" }

// Start launches the framebuffer. Older distributions ship the binary as
// "xvfb", newer ones as "Xvfb"; the legacy name is tried first.
func (f *Framebuffer) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle != nil {
		return fmt.Errorf("framebuffer already started")
	}

	args := []string{":" + f.display, "-ac", "-screen", "root", screenGeometry}

	handle, err := process.Start(process.Command{Binary: "xvfb", Args: args})
	if err != nil {
		handle, err = process.Start(process.Command{Binary: "Xvfb", Args: args})
	}
	if err != nil {
		return fmt.Errorf("failed to start virtual framebuffer: %w", err)
	}

	f.handle = handle
	f.oldDisp, f.hadDisp = os.LookupEnv("DISPLAY")
	os.Setenv("DISPLAY", ":"+f.display)

	f.log.Info("Virtual framebuffer started", map[string]interface{}{
		logger.FieldPID: handle.PID(),
		"display":       ":" + f.display,
	})
	return nil
}

// Stop kills the framebuffer and restores the previous DISPLAY value.
func (f *Framebuffer) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle == nil {
		return nil
	}

	err := f.handle.Kill()
	f.handle = nil

	if f.hadDisp {
		os.Setenv("DISPLAY", f.oldDisp)
	} else {
		os.Unsetenv("DISPLAY")
	}
	return err
}

// Health reports whether the framebuffer process is alive.
func (f *Framebuffer) Health(_ context.Context) component.Health {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.handle == nil {
		return component.Health{Name: f.Name(), Status: component.StatusDisabled, Message: "not started"}
	}
	if exited, code := f.handle.Exited(); exited {
		return component.Health{
			Name:    f.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("exited with code %d", code),
		}
	}
	return component.Health{Name: f.Name(), Status: component.StatusHealthy}
}
