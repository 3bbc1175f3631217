package database

import (
	"context"
	"fmt"
)

// Flush deletes all rows from all non-system tables. This is the reset path
// for tests that cannot rely on transactional rollback.
func (l *Lifecycle) Flush(ctx context.Context) error {
	session, err := l.session(ctx)
	if err != nil {
		return err
	}

	tables, err := l.tableNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables for flush: %w", err)
	}

	for _, table := range tables {
		if err := session.Exec(fmt.Sprintf("DELETE FROM %s", quoteIdent(l.cfg.Engine, table))).Error; err != nil {
			return fmt.Errorf("failed to flush table %s: %w", table, err)
		}
	}
	return nil
}

// CountRows returns the number of rows in a table.
func (l *Lifecycle) CountRows(ctx context.Context, table string) (int64, error) {
	session, err := l.session(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	err = session.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(l.cfg.Engine, table))).Scan(&count).Error
	return count, err
}

func quoteIdent(engine, ident string) string {
	switch engine {
	case "mysql":
		return "`" + ident + "`"
	case "postgres":
		return `"` + ident + `"`
	default:
		return ident
	}
}
