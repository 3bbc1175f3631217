package harness

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// TestOptions_AddFlagsDefaults tests the registered flag defaults
func TestOptions_AddFlagsDefaults(t *testing.T) {
	var opts Options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if opts.Settings != "" {
		t.Errorf("Settings = %q, want empty", opts.Settings)
	}
	if opts.UseSQLite {
		t.Error("UseSQLite should default to false")
	}
	if opts.ScreenshotDir != "failure_screenshots" {
		t.Errorf("ScreenshotDir = %q, want %q", opts.ScreenshotDir, "failure_screenshots")
	}
	if opts.Verbosity != 1 {
		t.Errorf("Verbosity = %d, want 1", opts.Verbosity)
	}
}

// TestOptions_ParseFlags tests flag parsing into the options
func TestOptions_ParseFlags(t *testing.T) {
	var opts Options
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	args := []string{
		"--settings", "myproject.settings",
		"--sqlite",
		"--xvfb-display", "99",
		"--verbosity", "2",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if opts.Settings != "myproject.settings" {
		t.Errorf("Settings = %q, want %q", opts.Settings, "myproject.settings")
	}
	if !opts.UseSQLite {
		t.Error("UseSQLite should be set")
	}
	if opts.XvfbDisplay != "99" {
		t.Errorf("XvfbDisplay = %q, want %q", opts.XvfbDisplay, "99")
	}
	if opts.Verbosity != 2 {
		t.Errorf("Verbosity = %d, want 2", opts.Verbosity)
	}
}

// TestOptions_ApplyDefaults tests path normalization
func TestOptions_ApplyDefaults(t *testing.T) {
	opts := Options{}
	opts.ApplyDefaults()

	if !filepath.IsAbs(opts.ScreenshotDir) {
		t.Errorf("ScreenshotDir should be absolute, got %q", opts.ScreenshotDir)
	}
	if filepath.Base(opts.ScreenshotDir) != "failure_screenshots" {
		t.Errorf("ScreenshotDir base = %q, want %q", filepath.Base(opts.ScreenshotDir), "failure_screenshots")
	}
}

// TestOptions_LogLevel tests the verbosity mapping
func TestOptions_LogLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      string
	}{
		{0, "warn"},
		{1, "info"},
		{2, "debug"},
		{3, "debug"},
	}
	for _, tt := range tests {
		opts := Options{Verbosity: tt.verbosity}
		if got := opts.logLevel(); got != tt.want {
			t.Errorf("logLevel(%d) = %q, want %q", tt.verbosity, got, tt.want)
		}
	}
}
