package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadOptions controls settings loading.
type LoadOptions struct {
	// Name is the settings name or path; empty means environment/default.
	Name string
	// EnvFile is an explicit .env overlay; empty means search next to the
	// settings file.
	EnvFile string
	// Locator overrides the default walk-up locator (for tests).
	Locator *Locator
}

// Loaded bundles the parsed settings with where they came from.
type Loaded struct {
	Settings *Settings
	// Path is the resolved settings file path.
	Path string
	// Dir is the directory containing the settings file; relative paths in
	// the settings resolve against it.
	Dir string
}

// Load resolves, reads and validates the project settings. The .env overlay,
// when present, is applied to the process environment before viper binds
// environment variables, so NOSEDJANGO_* variables can override file values.
func Load(opts LoadOptions) (*Loaded, error) {
	loc := opts.Locator
	if loc == nil {
		loc = NewLocator()
	}

	name := ResolveName(opts.Name)
	path, err := loc.Locate(name)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)

	envFile := opts.EnvFile
	if envFile == "" {
		candidate := filepath.Join(dir, ".env")
		if _, statErr := os.Stat(candidate); statErr == nil {
			envFile = candidate
		}
	}
	if envFile != "" {
		if envErr := godotenv.Load(envFile); envErr != nil {
			fmt.Printf("[settings] warning: failed to load .env file %s: %v\n", envFile, envErr)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	v.SetEnvPrefix("NOSEDJANGO")
	v.AutomaticEnv()

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings %s: %w", path, err)
	}

	s.ApplyDefaults()
	if err := Validate(s); err != nil {
		return nil, err
	}

	return &Loaded{Settings: s, Path: path, Dir: dir}, nil
}
