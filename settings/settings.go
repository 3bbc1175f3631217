// Package settings locates and loads the project settings the harness runs
// against. The settings file is found by explicit path, the NOSEDJANGO_SETTINGS
// environment variable, or by walking the filesystem upward from the working
// directory. All run-time mutation of settings goes through scoped
// Override/Restore pairs; nothing here is mutated behind the caller's back.
package settings

import (
	"fmt"
	"path/filepath"

	"github.com/akheron/nosedjango/logger"
)

// DefaultName is the settings file basename (without extension) used when no
// explicit settings are given.
const DefaultName = "settings"

// EnvVar names the environment variable consulted for the settings location.
const EnvVar = "NOSEDJANGO_SETTINGS"

// Settings is the loaded project configuration. It is passed down explicitly;
// components never reach for globals.
type Settings struct {
	Base       BaseConfig       `yaml:"base" mapstructure:"base"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Media      MediaConfig      `yaml:"media" mapstructure:"media"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Tasks      TasksConfig      `yaml:"tasks" mapstructure:"tasks"`
	LiveServer LiveServerConfig `yaml:"live_server" mapstructure:"live_server"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Logging    logger.Config    `yaml:"logging" mapstructure:"logging"`
}

// BaseConfig contains essential project fields.
type BaseConfig struct {
	Name  string `yaml:"name" mapstructure:"name" validate:"required"`
	Debug bool   `yaml:"debug" mapstructure:"debug"`
}

// DatabaseConfig describes the database the test run provisions against.
type DatabaseConfig struct {
	// Engine selects the driver: sqlite, mysql or postgres.
	Engine string `yaml:"engine" mapstructure:"engine" validate:"omitempty,oneof=sqlite mysql postgres"`
	Name   string `yaml:"name" mapstructure:"name"`
	User   string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Host   string `yaml:"host" mapstructure:"host"`
	Port   int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`

	// DisableTransactions forbids transactional isolation even when the
	// engine supports it.
	DisableTransactions bool `yaml:"disable_transactions" mapstructure:"disable_transactions"`
	// SupportsTransactions is the backend capability flag. Defaults to true.
	SupportsTransactions *bool `yaml:"supports_transactions" mapstructure:"supports_transactions"`

	// FixturesDir is where named fixture files live.
	FixturesDir string `yaml:"fixtures_dir" mapstructure:"fixtures_dir"`
}

// MediaConfig describes where the application stores uploaded files.
type MediaConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// CacheConfig describes the cache backend.
type CacheConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	// DisableQueryCache turns off any query-result caching layer.
	DisableQueryCache bool `yaml:"disable_query_cache" mapstructure:"disable_query_cache"`
}

// TasksConfig controls background-task execution.
type TasksConfig struct {
	// Eager runs tasks synchronously and inline instead of deferring them.
	Eager bool `yaml:"eager" mapstructure:"eager"`
}

// LiveServerConfig describes the embedded HTTP server for browser tests.
type LiveServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
}

// SearchConfig describes the external search-daemon integration.
type SearchConfig struct {
	// ConfigTemplate is the path to the daemon configuration template.
	ConfigTemplate string `yaml:"config_template" mapstructure:"config_template"`
	Port           int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (s *Settings) ApplyDefaults() {
	if s.Base.Name == "" {
		s.Base.Name = "project"
	}
	if s.Database.Engine == "" {
		s.Database.Engine = "sqlite"
	}
	if s.Database.Host == "" {
		s.Database.Host = "localhost"
	}
	if s.Database.FixturesDir == "" {
		s.Database.FixturesDir = "fixtures"
	}
	if s.Database.SupportsTransactions == nil {
		v := true
		s.Database.SupportsTransactions = &v
	}
	if s.Media.Root == "" {
		s.Media.Root = "media"
	}
	if s.Media.URL == "" {
		s.Media.URL = "/media/"
	}
	if s.LiveServer.Host == "" {
		s.LiveServer.Host = "0.0.0.0"
	}
	if s.LiveServer.Port == 0 {
		s.LiveServer.Port = 8000
	}
	if s.Search.Port == 0 {
		s.Search.Port = 45798
	}
	s.Logging.ApplyDefaults()
}

// DSN assembles the connection string for the configured engine.
func (c *DatabaseConfig) DSN() string {
	switch c.Engine {
	case "sqlite":
		if c.Name == "" {
			return ":memory:"
		}
		return c.Name
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	default:
		return c.Name
	}
}

// InMemory reports whether the database is the in-memory SQLite variant.
func (c *DatabaseConfig) InMemory() bool {
	return c.Engine == "sqlite" && c.Name == ""
}

// TransactionsSupported reports the backend capability flag.
func (c *DatabaseConfig) TransactionsSupported() bool {
	return c.SupportsTransactions == nil || *c.SupportsTransactions
}

// SettingsFilename returns the filename searched for a settings name, the
// last dotted segment with a .yml extension.
func SettingsFilename(name string) string {
	base := name
	if idx := lastDot(name); idx >= 0 {
		base = name[idx+1:]
	}
	return base + ".yml"
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// Restore undoes a scoped settings override.
type Restore func()

// Override applies a mutation to the settings and returns a Restore that
// reverts to the pre-override values. Restores must run LIFO.
func (s *Settings) Override(apply func(*Settings)) Restore {
	saved := *s
	savedSupports := s.Database.SupportsTransactions
	if savedSupports != nil {
		v := *savedSupports
		saved.Database.SupportsTransactions = &v
	}
	apply(s)
	return func() {
		*s = saved
	}
}

// resolve a relative media root against the settings file location.
func (s *Settings) ResolveMediaRoot(settingsDir string) string {
	if filepath.IsAbs(s.Media.Root) {
		return s.Media.Root
	}
	return filepath.Join(settingsDir, s.Media.Root)
}
