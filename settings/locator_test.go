package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/akheron/nosedjango/errors"
)

// fakeFS is an in-memory FileSystem for exercising the walk-up search.
type fakeFS struct {
	files map[string]bool
	cwd   string
}

func (f *fakeFS) Exists(path string) bool { return f.files[path] }
func (f *fakeFS) Getwd() (string, error)  { return f.cwd, nil }

// TestLocate_DirectPath tests that an existing path is returned unchanged
func TestLocate_DirectPath(t *testing.T) {
	fs := &fakeFS{
		files: map[string]bool{"/etc/custom.yml": true},
		cwd:   "/project",
	}
	loc := &Locator{FileSystem: fs}

	got, err := loc.Locate("/etc/custom.yml")
	if err != nil {
		t.Fatalf("Locate() failed: %v", err)
	}
	if got != "/etc/custom.yml" {
		t.Errorf("Locate() = %q, want %q", got, "/etc/custom.yml")
	}
}

// TestLocate_CurrentDirectory tests finding the file in the working directory
func TestLocate_CurrentDirectory(t *testing.T) {
	fs := &fakeFS{
		files: map[string]bool{"/project/app/settings.yml": true},
		cwd:   "/project/app",
	}
	loc := &Locator{FileSystem: fs}

	got, err := loc.Locate("settings")
	if err != nil {
		t.Fatalf("Locate() failed: %v", err)
	}
	if got != "/project/app/settings.yml" {
		t.Errorf("Locate() = %q, want %q", got, "/project/app/settings.yml")
	}
}

// TestLocate_WalkUp tests the upward search through parent directories
func TestLocate_WalkUp(t *testing.T) {
	fs := &fakeFS{
		files: map[string]bool{"/project/settings.yml": true},
		cwd:   "/project/app/tests/unit",
	}
	loc := &Locator{FileSystem: fs}

	got, err := loc.Locate("settings")
	if err != nil {
		t.Fatalf("Locate() failed: %v", err)
	}
	if got != "/project/settings.yml" {
		t.Errorf("Locate() = %q, want %q", got, "/project/settings.yml")
	}
}

// TestLocate_DottedName tests that only the last dotted segment is searched
func TestLocate_DottedName(t *testing.T) {
	fs := &fakeFS{
		files: map[string]bool{"/project/production.yml": true},
		cwd:   "/project",
	}
	loc := &Locator{FileSystem: fs}

	got, err := loc.Locate("myproject.config.production")
	if err != nil {
		t.Fatalf("Locate() failed: %v", err)
	}
	if got != "/project/production.yml" {
		t.Errorf("Locate() = %q, want %q", got, "/project/production.yml")
	}
}

// TestLocate_NotFound tests that an exhausted search is a fatal settings error
func TestLocate_NotFound(t *testing.T) {
	fs := &fakeFS{files: map[string]bool{}, cwd: "/project/app"}
	loc := &Locator{FileSystem: fs}

	_, err := loc.Locate("settings")
	if err == nil {
		t.Fatal("Locate() should fail when nothing matches")
	}
	if errors.CodeOf(err) != errors.ErrCodeSettingsNotFound {
		t.Errorf("error code = %q, want %q", errors.CodeOf(err), errors.ErrCodeSettingsNotFound)
	}
	if !errors.IsFatal(err) {
		t.Error("settings-not-found should be fatal")
	}
}

// TestLocate_StopsAtRoot tests that the search terminates at the filesystem root
func TestLocate_StopsAtRoot(t *testing.T) {
	fs := &fakeFS{files: map[string]bool{}, cwd: string(filepath.Separator)}
	loc := &Locator{FileSystem: fs}

	if _, err := loc.Locate("settings"); err == nil {
		t.Fatal("Locate() at root with no file should fail, not loop")
	}
}

// TestResolveName_Override tests that the explicit override wins
func TestResolveName_Override(t *testing.T) {
	t.Setenv(EnvVar, "from_env")

	if got := ResolveName("explicit"); got != "explicit" {
		t.Errorf("ResolveName = %q, want %q", got, "explicit")
	}
}

// TestResolveName_Environment tests fallback to the environment variable
func TestResolveName_Environment(t *testing.T) {
	t.Setenv(EnvVar, "from_env")

	if got := ResolveName(""); got != "from_env" {
		t.Errorf("ResolveName = %q, want %q", got, "from_env")
	}
}

// TestResolveName_DefaultExportsEnv tests the default and its env side effect
func TestResolveName_DefaultExportsEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	os.Unsetenv(EnvVar)

	if got := ResolveName(""); got != DefaultName {
		t.Errorf("ResolveName = %q, want %q", got, DefaultName)
	}
	if got := os.Getenv(EnvVar); got != DefaultName {
		t.Errorf("%s = %q after resolve, want %q", EnvVar, got, DefaultName)
	}
}
