package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/akheron/nosedjango/errors"
	"github.com/akheron/nosedjango/logger"
)

// fixtureEntry is one table's worth of rows in a fixture file. Entries load
// in file order so foreign-key parents can precede children.
type fixtureEntry struct {
	Table string                   `yaml:"table"`
	Rows  []map[string]interface{} `yaml:"rows"`
}

// LoadFixtures loads each named fixture in the declared order against the
// base connection. A fixture name resolves to <fixtures_dir>/<name>.yml.
// Errors propagate to the runner as ordinary test errors.
func (l *Lifecycle) LoadFixtures(ctx context.Context, names ...string) error {
	session, err := l.session(ctx)
	if err != nil {
		return err
	}
	return l.LoadFixturesIn(session, names...)
}

// LoadFixturesIn loads fixtures through the given session. A transactional
// test passes its sandbox transaction here so the fixture rows roll back with
// everything else the test wrote.
func (l *Lifecycle) LoadFixturesIn(session *gorm.DB, names ...string) error {
	for _, name := range names {
		if err := l.loadFixture(session, name); err != nil {
			return errors.FixtureLoad(name).WithCause(err)
		}
		l.log.Debug("Fixture loaded", map[string]interface{}{
			logger.FieldFixture: name,
		})
	}
	return nil
}

func (l *Lifecycle) loadFixture(session *gorm.DB, name string) error {
	path := filepath.Join(l.cfg.FixturesDir, name+".yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture file %s: %w", path, err)
	}

	var entries []fixtureEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse fixture file %s: %w", path, err)
	}

	for _, entry := range entries {
		if entry.Table == "" {
			return fmt.Errorf("fixture %s has an entry without a table", name)
		}
		for _, row := range entry.Rows {
			if err := session.Table(entry.Table).Create(row).Error; err != nil {
				return fmt.Errorf("failed to insert fixture row into %s: %w", entry.Table, err)
			}
		}
	}
	return nil
}
