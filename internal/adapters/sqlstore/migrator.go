package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/jmoiron/sqlx"
)

//go:embed schema_sqlite.sql schema_postgres.sql
var schemaFS embed.FS

const initialSchema = "initial_schema"

// Migrator handles database schema migrations
type Migrator struct {
	db      *sqlx.DB
	dialect ports.DatabaseType
	logger  observability.Logger
}

// NewMigrator creates a new database migrator
func NewMigrator(db *sqlx.DB, dialect ports.DatabaseType) *Migrator {
	return &Migrator{
		db:      db,
		dialect: dialect,
		logger:  observability.New("migrator", ""),
	}
}

// Migrate runs all necessary database migrations
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.isMigrationApplied(ctx, initialSchema)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if applied {
		m.logger.Debugw("Initial schema already applied", "dialect", m.dialect)
		return nil
	}

	schemaSQL, err := schemaFS.ReadFile(m.schemaFile())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", m.schemaFile(), err)
	}

	m.logger.Infow("Applying initial schema", "dialect", m.dialect)

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := m.recordMigration(ctx, tx, initialSchema, "Applied initial schema from "+m.schemaFile()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	m.logger.Infow("Database migration completed", "dialect", m.dialect)
	return nil
}

func (m *Migrator) schemaFile() string {
	if m.dialect == ports.DatabaseTypePostgreSQL {
		return "schema_postgres.sql"
	}
	return "schema_sqlite.sql"
}

// createMigrationTable creates the migrations tracking table
func (m *Migrator) createMigrationTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			migration_name TEXT NOT NULL UNIQUE,
			description TEXT,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if m.dialect == ports.DatabaseTypePostgreSQL {
		query = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				id SERIAL PRIMARY KEY,
				migration_name VARCHAR(255) NOT NULL UNIQUE,
				description TEXT,
				applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)
		`
	}

	_, err := m.db.ExecContext(ctx, query)
	return err
}

// isMigrationApplied checks if a migration has already been applied
func (m *Migrator) isMigrationApplied(ctx context.Context, migrationName string) (bool, error) {
	var count int
	query := m.db.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE migration_name = ?`)
	if err := m.db.GetContext(ctx, &count, query, migrationName); err != nil {
		return false, err
	}
	return count > 0, nil
}

// recordMigration records a migration in the tracking table
func (m *Migrator) recordMigration(ctx context.Context, tx *sqlx.Tx, migrationName, description string) error {
	query := tx.Rebind(`
		INSERT INTO schema_migrations (migration_name, description, applied_at)
		VALUES (?, ?, ?)
		ON CONFLICT (migration_name) DO NOTHING
	`)
	_, err := tx.ExecContext(ctx, query, migrationName, description, time.Now())
	return err
}

// GetMigrationStatus returns the status of all applied migrations
func (m *Migrator) GetMigrationStatus(ctx context.Context) ([]ports.MigrationStatus, error) {
	var records []MigrationRecord
	query := `
		SELECT migration_name, description, applied_at
		FROM schema_migrations
		ORDER BY applied_at DESC
	`
	if err := m.db.SelectContext(ctx, &records, query); err != nil {
		return nil, err
	}

	statuses := make([]ports.MigrationStatus, 0, len(records))
	for i, r := range records {
		statuses = append(statuses, ports.MigrationStatus{
			Version:     int64(len(records) - i),
			Description: r.MigrationName + ": " + r.Description,
			Applied:     true,
			AppliedAt:   r.AppliedAt.Format(time.RFC3339),
		})
	}
	return statuses, nil
}

// MigrationRecord represents a migration record
type MigrationRecord struct {
	MigrationName string    `db:"migration_name"`
	Description   string    `db:"description"`
	AppliedAt     time.Time `db:"applied_at"`
}

// VerifySchema verifies that every collection table exists
func (m *Migrator) VerifySchema(ctx context.Context) error {
	tables := []string{"schema_migrations", "id_sequences"}
	for _, c := range models.AllCollections() {
		spec, _ := c.Spec()
		tables = append(tables, spec.Table)
	}

	query := m.db.Rebind(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`)
	if m.dialect == ports.DatabaseTypePostgreSQL {
		query = m.db.Rebind(`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`)
	}

	for _, table := range tables {
		var count int
		if err := m.db.GetContext(ctx, &count, query, table); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("table %s does not exist", table)
		}
		m.logger.Debugw("Table exists", "table", table)
	}

	m.logger.Infow("Schema verification completed", "tables", len(tables))
	return nil
}
