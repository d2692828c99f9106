package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// source driver

	"github.com/jonesrussell/north-cloud/content-crawler/internal/logger"
)

// Migrator applies the SQL files under a migrations directory. It owns a
// dedicated connection that Close releases.
type Migrator struct {
	m   *migrate.Migrate
	dir string
	log logger.Logger
}

// MigrationsURL turns dir into an absolute file:// source URL.
func MigrationsURL(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return "file://" + filepath.ToSlash(dir)
}

// NewMigrator opens its own connection to dsn.
func NewMigrator(dsn, dir string, log logger.Logger) (*Migrator, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database connection: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(MigrationsURL(dir), "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load migrations from %s: %w", dir, err)
	}
	return &Migrator{m: m, dir: dir, log: log.With(logger.Component("migrator"))}, nil
}

// Up applies every pending migration. No pending migration is not an error.
func (g *Migrator) Up() error {
	err := g.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		g.log.Info("No pending migrations", logger.String("dir", g.dir))
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	g.log.Info("Migrations applied", logger.String("dir", g.dir))
	return nil
}

// Down rolls back steps migrations, at least one.
func (g *Migrator) Down(steps int) error {
	steps = max(steps, 1)
	err := g.m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("roll back %d migrations: %w", steps, err)
	}
	g.log.Info("Migrations rolled back", logger.Int("steps", steps))
	return nil
}

// Version reports the applied version; zero means none.
func (g *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migrator's connection.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}
