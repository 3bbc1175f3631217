package database

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gorm.io/gorm"

	"github.com/akheron/nosedjango/component"
	"github.com/akheron/nosedjango/errors"
	"github.com/akheron/nosedjango/logger"
	"github.com/akheron/nosedjango/settings"
)

// testPrefix is prepended to the configured database name for the run.
const testPrefix = "test_"

// Lifecycle creates the ephemeral test database before the run and destroys
// it afterwards. It implements component.Component; creation failure is fatal
// for the run.
type Lifecycle struct {
	cfg    settings.DatabaseConfig
	log    *logger.Logger
	models []interface{}

	db           *DB
	originalName string
	testName     string
	started      bool
	mu           sync.RWMutex
}

var _ component.Component = (*Lifecycle)(nil)

// NewLifecycle creates a test database lifecycle for the given configuration.
// The configuration is copied; the caller's settings are not mutated.
func NewLifecycle(cfg settings.DatabaseConfig, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		cfg: cfg,
		log: log.WithComponent("database"),
	}
}

// WithModels registers models for auto-migration when the test database is
// created.
func (l *Lifecycle) WithModels(models ...interface{}) *Lifecycle {
	l.models = append(l.models, models...)
	return l
}

// DB returns the handle to the test database, or nil before Start.
func (l *Lifecycle) DB() *DB {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db
}

// TestName returns the name of the ephemeral database.
func (l *Lifecycle) TestName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.testName
}

// OriginalName returns the database name captured before the override.
func (l *Lifecycle) OriginalName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.originalName
}

// Config returns the effective database configuration for the run, with the
// ephemeral name applied.
func (l *Lifecycle) Config() settings.DatabaseConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg := l.cfg
	cfg.Name = l.testName
	return cfg
}

// Name returns the component name.
func (l *Lifecycle) Name() string { return "test-database" }

// Start creates the ephemeral test database and opens a handle to it. The
// original database name is captured for restoration at Stop.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return errors.Internal("test database already created")
	}

	l.originalName = l.cfg.Name
	l.testName = l.deriveTestName()

	if err := l.createDatabase(ctx); err != nil {
		return errors.DatabaseCreate(l.testName).WithCause(err)
	}

	factory, err := dialectorFor(l.cfg.Engine)
	if err != nil {
		return errors.DatabaseCreate(l.testName).WithCause(err)
	}

	testCfg := l.cfg
	testCfg.Name = l.testName
	db, err := Open(ctx, factory(testCfg.DSN()), l.log)
	if err != nil {
		return errors.DatabaseCreate(l.testName).WithCause(err)
	}
	l.db = db

	// An in-memory SQLite store lives inside a single connection; a second
	// pooled connection would see its own empty database.
	if testCfg.InMemory() {
		if sqlDB, poolErr := db.GormDB.DB(); poolErr == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if len(l.models) > 0 {
		if err := db.AutoMigrate(l.models...); err != nil {
			_ = db.Close()
			l.db = nil
			return errors.DatabaseCreate(l.testName).WithCause(err)
		}
	}

	l.started = true
	l.log.Info("Test database created", map[string]interface{}{
		logger.FieldDatabase: l.testName,
		"engine":             l.cfg.Engine,
	})
	return nil
}

// Stop destroys the test database using the captured original name to restore
// the configuration. Teardown errors are returned but not fatal.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}

	if l.db != nil {
		if err := l.db.Close(); err != nil {
			l.log.Warn("Failed to close test database handle", logger.ErrorFields("close", err))
		}
		l.db = nil
	}

	err := l.destroyDatabase(ctx)
	l.started = false
	if err != nil {
		return fmt.Errorf("failed to destroy test database %s: %w", l.testName, err)
	}

	l.log.Info("Test database destroyed", map[string]interface{}{
		logger.FieldDatabase: l.testName,
	})
	l.testName = ""
	return nil
}

// Health reports whether the test database answers a ping.
func (l *Lifecycle) Health(ctx context.Context) component.Health {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.started || l.db == nil {
		return component.Health{
			Name:    l.Name(),
			Status:  component.StatusUnhealthy,
			Message: "test database not created",
		}
	}
	if err := l.db.PingContext(ctx); err != nil {
		return component.Health{
			Name:    l.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return component.Health{Name: l.Name(), Status: component.StatusHealthy}
}

// deriveTestName computes the ephemeral database name. The in-memory SQLite
// variant keeps its empty name; a file-backed SQLite database gets a prefixed
// file next to the original.
func (l *Lifecycle) deriveTestName() string {
	if l.cfg.Engine == "sqlite" {
		if l.cfg.Name == "" {
			return ""
		}
		return testPrefix + l.cfg.Name
	}
	name := l.cfg.Name
	if name == "" {
		name = "project"
	}
	return testPrefix + name
}

// createDatabase provisions the database server-side. SQLite needs nothing:
// the file (or in-memory store) materializes on open.
func (l *Lifecycle) createDatabase(ctx context.Context) error {
	switch l.cfg.Engine {
	case "sqlite":
		return nil
	case "mysql":
		return l.execOnServer(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", l.testName))
	case "postgres":
		return l.execOnServer(ctx, fmt.Sprintf("CREATE DATABASE %q", l.testName))
	default:
		return fmt.Errorf("unsupported database engine %q", l.cfg.Engine)
	}
}

// destroyDatabase drops the ephemeral database or removes the SQLite file.
func (l *Lifecycle) destroyDatabase(ctx context.Context) error {
	switch l.cfg.Engine {
	case "sqlite":
		if l.testName == "" {
			return nil // in-memory store dies with the connection
		}
		if err := os.Remove(l.testName); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case "mysql":
		return l.execOnServer(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", l.testName))
	case "postgres":
		return l.execOnServer(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %q", l.testName))
	default:
		return fmt.Errorf("unsupported database engine %q", l.cfg.Engine)
	}
}

// execOnServer runs a statement against the server's maintenance database
// rather than the test database itself.
func (l *Lifecycle) execOnServer(ctx context.Context, stmt string) error {
	serverCfg := l.cfg
	switch l.cfg.Engine {
	case "mysql":
		serverCfg.Name = ""
	case "postgres":
		serverCfg.Name = "postgres"
	}

	factory, err := dialectorFor(serverCfg.Engine)
	if err != nil {
		return err
	}
	server, err := Open(ctx, factory(serverCfg.DSN()), l.log)
	if err != nil {
		return err
	}
	defer server.Close()

	return server.WithContext(ctx).Exec(stmt).Error
}

// tableNames lists all non-system tables in the test database.
func (l *Lifecycle) tableNames(ctx context.Context) ([]string, error) {
	var tables []string
	var query string
	switch l.cfg.Engine {
	case "sqlite":
		query = "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'"
	case "mysql":
		query = "SHOW TABLES"
	case "postgres":
		query = "SELECT tablename FROM pg_tables WHERE schemaname = 'public'"
	default:
		return nil, fmt.Errorf("unsupported database engine %q", l.cfg.Engine)
	}

	err := l.db.WithContext(ctx).Raw(query).Scan(&tables).Error
	return tables, err
}

// session returns a context-scoped GORM handle, panicking before Start is an
// internal error the caller should never hit.
func (l *Lifecycle) session(ctx context.Context) (*gorm.DB, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil, errors.Internal("test database not started")
	}
	return l.db.WithContext(ctx), nil
}
