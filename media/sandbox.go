// Package media sandboxes the application's file storage for the duration of
// a test run. Files are written under a dedicated test subdirectory of the
// normal media root, which is removed wholesale at run finalization.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/settings"
)

// testSubdir is the sandbox directory created under the media root.
const testSubdir = "test_media"

// Sandbox is the run-scoped filesystem sandbox. It implements
// component.TestComponent so the registry can create and destroy it with the
// rest of the test infrastructure.
type Sandbox struct {
	cfg     settings.MediaConfig
	base    string
	baseURL string
	log     *logger.Logger
	started bool
	mu      sync.RWMutex
}

var _ component.TestComponent = (*Sandbox)(nil)

// NewSandbox creates a media sandbox for the given configuration.
func NewSandbox(cfg settings.MediaConfig, log *logger.Logger) *Sandbox {
	return &Sandbox{
		cfg: cfg,
		log: log.WithComponent("media"),
	}
}

// Root returns the sandbox directory all storage operations resolve under.
func (s *Sandbox) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// URL returns the base URL files in the sandbox are served from.
func (s *Sandbox) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// Name returns the component name.
func (s *Sandbox) Name() string { return "media-sandbox" }

// Start creates the sandbox directory under the configured media root.
func (s *Sandbox) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("media sandbox already started")
	}

	base, err := filepath.Abs(filepath.Join(s.cfg.Root, testSubdir))
	if err != nil {
		return fmt.Errorf("failed to resolve media sandbox path: %w", err)
	}
	if err := os.MkdirAll(base, 0o750); err != nil {
		return fmt.Errorf("failed to create media sandbox: %w", err)
	}

	s.base = base
	s.baseURL = strings.TrimSuffix(s.cfg.URL, "/") + "/" + testSubdir + "/"
	s.started = true

	s.log.Debug("Media sandbox created", map[string]interface{}{"root": base})
	return nil
}

// Stop removes the sandbox directory and everything in it. A missing
// directory is tolerated.
func (s *Sandbox) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	if err := os.RemoveAll(s.base); err != nil && !os.IsNotExist(err) {
		s.log.Warn("Failed to remove media sandbox", logger.ErrorFields("remove", err))
	}
	return nil
}

// Health reports whether the sandbox directory exists.
func (s *Sandbox) Health(_ context.Context) component.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	if _, err := os.Stat(s.base); err != nil {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// Reset empties the sandbox without removing it.
func (s *Sandbox) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("media sandbox not started")
	}

	entries, err := os.ReadDir(s.base)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.base, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot lists the relative paths currently stored in the sandbox.
func (s *Sandbox) Snapshot(_ context.Context) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []string
	err := filepath.Walk(s.base, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.base, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, rel)
		return nil
	})
	return paths, err
}

// Restore removes any file that is not part of the snapshot. File contents
// are not versioned; the sandbox only guarantees the file set.
func (s *Sandbox) Restore(ctx context.Context, snapshot interface{}) error {
	paths, ok := snapshot.([]string)
	if !ok {
		return fmt.Errorf("invalid media snapshot type %T", snapshot)
	}

	keep := make(map[string]bool, len(paths))
	for _, p := range paths {
		keep[p] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return filepath.Walk(s.base, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.base, path)
		if relErr != nil {
			return relErr
		}
		if !keep[rel] {
			return os.Remove(path)
		}
		return nil
	})
}

// Save writes data to a file under the sandbox, creating parent directories.
func (s *Sandbox) Save(path string, reader io.Reader) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Open returns a reader for a sandboxed file.
func (s *Sandbox) Open(path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Exists checks whether a sandboxed file exists.
func (s *Sandbox) Exists(path string) bool {
	full, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(full)
	return statErr == nil
}

func (s *Sandbox) resolve(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", fmt.Errorf("media sandbox not started")
	}
	return filepath.Join(s.base, filepath.Clean("/"+path)), nil
}
