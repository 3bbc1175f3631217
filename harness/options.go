package harness

import (
	"path/filepath"

	"github.com/spf13/pflag"
)

// Options are the harness's command-line options, registered on the runner's
// flag set.
type Options struct {
	// Settings is the settings name or path; empty falls back to the
	// NOSEDJANGO_SETTINGS environment variable, then the default name.
	Settings string
	// UseSQLite forces the in-memory SQLite database for the run.
	UseSQLite bool
	// XvfbDisplay starts an X virtual framebuffer at the given display
	// number for headless browser testing. Empty disables it.
	XvfbDisplay string
	// ScreenshotDir is where failure screenshots are written.
	ScreenshotDir string
	// SearchConfigTemplate is the path to the search-daemon configuration
	// template. Empty disables the search integration.
	SearchConfigTemplate string
	// Verbosity controls log output: 0 quiet, 1 normal, 2+ debug.
	Verbosity int
}

// AddFlags registers the harness flags on the given flag set.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Settings, "settings", "", "use a custom settings file")
	fs.BoolVar(&o.UseSQLite, "sqlite", false, "use in-memory sqlite for the tests")
	fs.StringVar(&o.XvfbDisplay, "xvfb-display", "",
		"create an X virtual framebuffer at the given display number for headless browser testing")
	fs.StringVar(&o.ScreenshotDir, "screenshot-dir", "failure_screenshots",
		"directory for failure screenshots")
	fs.StringVar(&o.SearchConfigTemplate, "search-config-tpl", "",
		"path to the search daemon configuration template")
	fs.IntVar(&o.Verbosity, "verbosity", 1, "output verbosity")
}

// ApplyDefaults normalizes the options after flag parsing.
func (o *Options) ApplyDefaults() {
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = "failure_screenshots"
	}
	if abs, err := filepath.Abs(o.ScreenshotDir); err == nil {
		o.ScreenshotDir = abs
	}
	if o.SearchConfigTemplate != "" {
		if abs, err := filepath.Abs(o.SearchConfigTemplate); err == nil {
			o.SearchConfigTemplate = abs
		}
	}
}

// logLevel maps verbosity to a log level.
func (o *Options) logLevel() string {
	switch {
	case o.Verbosity <= 0:
		return "warn"
	case o.Verbosity == 1:
		return "info"
	default:
		return "debug"
	}
}
