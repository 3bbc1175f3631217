package settings

import (
	"os"
	"path/filepath"

	"github.com/akheron/nosedjango/errors"
	"github.com/akheron/nosedjango/logger"
)

// FileSystem abstracts the file operations the locator needs (useful for
// testing the walk-up behavior without touching the real tree).
type FileSystem interface {
	Exists(path string) bool
	Getwd() (string, error)
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) Getwd() (string, error) {
	return os.Getwd()
}

// Locator finds the settings file for a run. No caching; it runs once per
// session.
type Locator struct {
	FileSystem FileSystem
}

// NewLocator creates a locator over the real filesystem.
func NewLocator() *Locator {
	return &Locator{FileSystem: &RealFileSystem{}}
}

// Locate resolves a settings name to a file path. A name that is already a
// path to an existing file is returned as-is. Otherwise the locator looks for
// the derived filename in the working directory and then in each parent,
// stopping at the filesystem root. Failure is fatal for the run.
func (l *Locator) Locate(name string) (string, error) {
	if l.FileSystem.Exists(name) {
		return name, nil
	}

	filename := SettingsFilename(name)

	dir, err := l.FileSystem.Getwd()
	if err != nil {
		return "", errors.SettingsNotFound(name).WithCause(err)
	}

	for {
		candidate := filepath.Join(dir, filename)
		if l.FileSystem.Exists(candidate) {
			logger.Debug("Settings file located", map[string]interface{}{
				"path": candidate,
			})
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// filesystem or drive root
			return "", errors.SettingsNotFound(name)
		}
		dir = parent
	}
}

// ResolveName determines the settings name for the run: the explicit override
// wins, then the NOSEDJANGO_SETTINGS environment variable, then the default.
// When the variable is absent it is set to the chosen name as a side effect so
// child processes agree with the run.
func ResolveName(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	os.Setenv(EnvVar, DefaultName)
	return DefaultName
}
