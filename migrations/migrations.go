// Package migrations embeds the storefront schema and applies it with
// golang-migrate. Each engine has its own directory of versioned files.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite3/*.sql
var files embed.FS

// New builds a migrator over an open handle. dialect is the golang-migrate
// database driver name ("postgres" or "sqlite3"), as reported by
// db.Driver.MigrateDriver.
//
// The returned Migrate must not be closed while sqldb is still in use:
// closing it closes sqldb as well.
func New(sqldb *sql.DB, dialect string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, dialect)
	if err != nil {
		return nil, fmt.Errorf("migrations: no embedded files for %q: %w", dialect, err)
	}

	var drv database.Driver
	switch dialect {
	case "postgres":
		drv, err = postgres.WithInstance(sqldb, &postgres.Config{})
	case "sqlite3":
		drv, err = sqlite3.WithInstance(sqldb, &sqlite3.Config{})
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("migrations: database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, drv)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations. An already current schema is not an error.
func Up(sqldb *sql.DB, dialect string) error {
	m, err := New(sqldb, dialect)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}
