package storage

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/chain-portfolio/internal/logging"
)

// DefaultMigrationsPath is the schema directory relative to the repository root
const DefaultMigrationsPath = "migrations/postgres"

// Migrator applies the wallets, alerts and snapshot schema
type Migrator struct {
	m    *migrate.Migrate
	path string
	log  *logging.Logger
}

// NewMigrator opens the migration files at migrationsPath against databaseURL
func NewMigrator(databaseURL, migrationsPath string) (*Migrator, error) {
	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations at %s: %w", migrationsPath, err)
	}
	return &Migrator{
		m:    m,
		path: migrationsPath,
		log:  logging.GetGlobalLogger().WithField("component", "migrator"),
	}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Debug("Schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations from %s: %w", m.path, err)
	}
	m.logVersion("Schema migrated")
	return nil
}

// Down rolls back the most recent migration
func (m *Migrator) Down() error {
	err := m.m.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	m.logVersion("Schema rolled back")
	return nil
}

// Version returns the applied schema version. A database with no
// migrations applied reports version 0.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) logVersion(message string) {
	version, dirty, err := m.Version()
	if err != nil {
		m.log.WithError(err).Warn(message)
		return
	}
	m.log.WithFields(map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	}).Info(message)
}

// RunMigrations applies every pending migration and closes the migrator
func RunMigrations(databaseURL, migrationsPath string) error {
	m, err := NewMigrator(databaseURL, migrationsPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			m.log.WithError(err).Warn("Failed to close migrator")
		}
	}()
	return m.Up()
}
