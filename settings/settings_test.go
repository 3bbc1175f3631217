package settings

import (
	"path/filepath"
	"testing"
)

// TestSettingsFilename tests filename derivation from dotted settings names
func TestSettingsFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"settings", "settings.yml"},
		{"myproject.settings", "settings.yml"},
		{"a.b.c.production", "production.yml"},
	}
	for _, tt := range tests {
		if got := SettingsFilename(tt.name); got != tt.want {
			t.Errorf("SettingsFilename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

// TestApplyDefaults_Engine tests the default database engine
func TestApplyDefaults_Engine(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()

	if s.Database.Engine != "sqlite" {
		t.Errorf("Engine = %q, want %q", s.Database.Engine, "sqlite")
	}
}

// TestApplyDefaults_SupportsTransactions tests the default capability flag
func TestApplyDefaults_SupportsTransactions(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()

	if s.Database.SupportsTransactions == nil || !*s.Database.SupportsTransactions {
		t.Error("SupportsTransactions should default to true")
	}
}

// TestApplyDefaults_SearchPort tests the default search daemon port
func TestApplyDefaults_SearchPort(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()

	if s.Search.Port != 45798 {
		t.Errorf("Search.Port = %d, want 45798", s.Search.Port)
	}
}

// TestApplyDefaults_PreservesExistingValues tests that non-zero values survive
func TestApplyDefaults_PreservesExistingValues(t *testing.T) {
	s := &Settings{}
	s.Database.Engine = "postgres"
	s.LiveServer.Port = 9000
	s.ApplyDefaults()

	if s.Database.Engine != "postgres" {
		t.Errorf("Engine = %q, want %q", s.Database.Engine, "postgres")
	}
	if s.LiveServer.Port != 9000 {
		t.Errorf("LiveServer.Port = %d, want 9000", s.LiveServer.Port)
	}
}

// TestDSN tests connection string assembly per engine
func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "sqlite in-memory",
			cfg:  DatabaseConfig{Engine: "sqlite"},
			want: ":memory:",
		},
		{
			name: "sqlite file",
			cfg:  DatabaseConfig{Engine: "sqlite", Name: "app.db"},
			want: "app.db",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Engine: "mysql", Name: "app", User: "u", Password: "p", Host: "localhost", Port: 3306},
			want: "u:p@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True",
		},
		{
			name: "postgres",
			cfg:  DatabaseConfig{Engine: "postgres", Name: "app", User: "u", Password: "p", Host: "localhost", Port: 5432},
			want: "host=localhost port=5432 user=u password=p dbname=app sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestInMemory tests in-memory SQLite detection
func TestInMemory(t *testing.T) {
	cfg := DatabaseConfig{Engine: "sqlite"}
	if !cfg.InMemory() {
		t.Error("empty-name sqlite should be in-memory")
	}

	cfg.Name = "app.db"
	if cfg.InMemory() {
		t.Error("file-backed sqlite should not be in-memory")
	}

	cfg = DatabaseConfig{Engine: "postgres"}
	if cfg.InMemory() {
		t.Error("postgres should never be in-memory")
	}
}

// TestTransactionsSupported tests the capability flag accessor
func TestTransactionsSupported(t *testing.T) {
	cfg := DatabaseConfig{}
	if !cfg.TransactionsSupported() {
		t.Error("nil flag should report supported")
	}

	no := false
	cfg.SupportsTransactions = &no
	if cfg.TransactionsSupported() {
		t.Error("explicit false flag should report unsupported")
	}
}

// TestOverride_Restores tests that a scoped override reverts on restore
func TestOverride_Restores(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()
	s.Database.Engine = "postgres"
	s.Database.Name = "app"

	restore := s.Override(func(s *Settings) {
		s.Database.Engine = "sqlite"
		s.Database.Name = ""
	})

	if s.Database.Engine != "sqlite" {
		t.Errorf("Engine after override = %q, want %q", s.Database.Engine, "sqlite")
	}

	restore()

	if s.Database.Engine != "postgres" {
		t.Errorf("Engine after restore = %q, want %q", s.Database.Engine, "postgres")
	}
	if s.Database.Name != "app" {
		t.Errorf("Name after restore = %q, want %q", s.Database.Name, "app")
	}
}

// TestOverride_NestedLIFO tests that nested overrides unwind in LIFO order
func TestOverride_NestedLIFO(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()
	s.Cache.Addr = "original:6379"

	r1 := s.Override(func(s *Settings) { s.Cache.Addr = "first:6379" })
	r2 := s.Override(func(s *Settings) { s.Cache.Addr = "second:6379" })

	r2()
	if s.Cache.Addr != "first:6379" {
		t.Errorf("Addr after inner restore = %q, want %q", s.Cache.Addr, "first:6379")
	}

	r1()
	if s.Cache.Addr != "original:6379" {
		t.Errorf("Addr after outer restore = %q, want %q", s.Cache.Addr, "original:6379")
	}
}

// TestOverride_CopiesCapabilityFlag tests that the pointer flag is deep-copied
func TestOverride_CopiesCapabilityFlag(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()

	restore := s.Override(func(s *Settings) {
		no := false
		s.Database.SupportsTransactions = &no
	})
	restore()

	if !s.Database.TransactionsSupported() {
		t.Error("capability flag should be restored to true")
	}
}

// TestResolveMediaRoot tests media root resolution against the settings dir
func TestResolveMediaRoot(t *testing.T) {
	s := &Settings{}
	s.Media.Root = "media"

	got := s.ResolveMediaRoot("/project")
	want := filepath.Join("/project", "media")
	if got != want {
		t.Errorf("ResolveMediaRoot = %q, want %q", got, want)
	}

	s.Media.Root = "/var/media"
	if got := s.ResolveMediaRoot("/project"); got != "/var/media" {
		t.Errorf("absolute root should pass through, got %q", got)
	}
}
