// Package migrate applies versioned SQL schema migrations to the SQLite stores.
package migrate

import (
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Migration is one schema version with its forward and rollback SQL
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// DB is satisfied by *sql.DB and *sql.Tx
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Source lists migrations and tracks the applied version
type Source interface {
	Migrations() ([]Migration, error)
	CurrentVersion(db DB) (int, error)
	SetVersion(db DB, version int) error
	EnsureVersionTable(db DB) error
}

// Migrator applies migrations from a Source
type Migrator struct {
	db     *sql.DB
	source Source
	logger *zap.SugaredLogger
}

// NewMigrator returns a migrator. A nil logger discards progress messages.
func NewMigrator(db *sql.DB, source Source, logger *zap.SugaredLogger) *Migrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Migrator{db: db, source: source, logger: logger}
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	return m.To(-1)
}

// To moves the schema to targetVersion, applying or rolling back as needed. -1 means latest.
func (m *Migrator) To(targetVersion int) error {
	if err := m.source.EnsureVersionTable(m.db); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	current, err := m.source.CurrentVersion(m.db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations, err := m.sorted()
	if err != nil {
		return err
	}

	if targetVersion == -1 {
		targetVersion = 0
		if len(migrations) > 0 {
			targetVersion = migrations[len(migrations)-1].Version
		}
	}

	if targetVersion < current {
		return m.Down(targetVersion)
	}

	for _, mg := range migrations {
		if mg.Version > current && mg.Version <= targetVersion {
			if err := m.apply(mg, true); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", mg.Version, err)
			}
		}
	}
	return nil
}

// Down rolls back every migration above targetVersion
func (m *Migrator) Down(targetVersion int) error {
	current, err := m.Version()
	if err != nil {
		return err
	}
	if targetVersion >= current {
		return fmt.Errorf("target version %d must be less than current version %d", targetVersion, current)
	}

	migrations, err := m.sorted()
	if err != nil {
		return err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		mg := migrations[i]
		if mg.Version > targetVersion && mg.Version <= current {
			if err := m.apply(mg, false); err != nil {
				return fmt.Errorf("failed to roll back migration %d: %w", mg.Version, err)
			}
		}
	}
	return nil
}

// Version returns the applied schema version, 0 for a fresh database
func (m *Migrator) Version() (int, error) {
	if err := m.source.EnsureVersionTable(m.db); err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}
	return m.source.CurrentVersion(m.db)
}

// Pending returns the migrations above the applied version, ascending
func (m *Migrator) Pending() ([]Migration, error) {
	current, err := m.Version()
	if err != nil {
		return nil, err
	}
	migrations, err := m.sorted()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mg := range migrations {
		if mg.Version > current {
			pending = append(pending, mg)
		}
	}
	return pending, nil
}

func (m *Migrator) sorted() ([]Migration, error) {
	migrations, err := m.source.Migrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// apply runs one migration and records the resulting version in a single transaction
func (m *Migrator) apply(mg Migration, up bool) error {
	stmt, direction, version := mg.Up, "up", mg.Version
	if !up {
		stmt, direction, version = mg.Down, "down", mg.Version-1
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", mg.Version, direction)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := m.source.SetVersion(tx, version); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logger.Infof("applied migration %d (%s) %s", mg.Version, mg.Name, direction)
	return nil
}
