package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DialectorFactory builds a gorm.Dialector for a DSN.
type DialectorFactory func(dsn string) gorm.Dialector

// dialectorFor returns the factory for a configured engine.
func dialectorFor(engine string) (DialectorFactory, error) {
	switch engine {
	case "sqlite":
		return func(dsn string) gorm.Dialector { return sqlite.Open(dsn) }, nil
	case "mysql":
		return func(dsn string) gorm.Dialector { return mysql.Open(dsn) }, nil
	case "postgres":
		return func(dsn string) gorm.Dialector { return postgres.Open(dsn) }, nil
	default:
		return nil, fmt.Errorf("unsupported database engine %q", engine)
	}
}
