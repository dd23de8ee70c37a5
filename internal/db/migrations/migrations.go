// Package migrations applies the embedded SQL schema with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes where the database schema stands relative to the
// migrations compiled into this binary.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// UpToDate reports whether no migration is pending.
func (s Status) UpToDate() bool {
	return !s.Dirty && s.Current == s.Latest
}

func (s Status) String() string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("dirty at version %d (a migration failed previously)", s.Current)
	case s.Current < s.Latest:
		return fmt.Sprintf("at version %d, latest is %d (%d behind)", s.Current, s.Latest, s.Latest-s.Current)
	case s.Current > s.Latest:
		return fmt.Sprintf("at version %d, ahead of binary version %d", s.Current, s.Latest)
	}
	return fmt.Sprintf("up to date at version %d", s.Current)
}

// OpenDB exposes a pool as *sql.DB for the migration driver. Closing the
// returned handle does not close the pool.
func OpenDB(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}

// CheckStatus reads the schema version without changing anything.
func CheckStatus(db *sql.DB) (Status, error) {
	m, err := newMigrate(db)
	if err != nil {
		return Status{}, fmt.Errorf("create migrate instance: %w", err)
	}
	// m is not closed: that would close db, which the caller owns.

	latest, err := latestVersion()
	if err != nil {
		return Status{}, fmt.Errorf("determine latest version: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return Status{Latest: latest}, nil
		}
		return Status{}, fmt.Errorf("get database version: %w", err)
	}
	return Status{Current: version, Latest: latest, Dirty: dirty}, nil
}

// MigrateUp applies every pending migration. Already current is not an error.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("create source driver: %w", err)
	}

	dbDriver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx5", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("read migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

// lastVersion walks the source to its final migration.
func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}
