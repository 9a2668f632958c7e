package database

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
// ARCHITECTURAL DISCOVERY: Migration struct encapsulates all information
// needed for safe schema evolution across restarts
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations is the full ordered schema history, embedded so the binary is
// self-contained and never depends on loose .sql files at runtime.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE users (
				id         TEXT PRIMARY KEY,
				email      TEXT NOT NULL,
				password   TEXT NOT NULL,
				role       TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_users_role ON users(role);
			CREATE INDEX idx_users_email ON users(email);

			CREATE TABLE alerts (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				alert_type TEXT NOT NULL,
				message    TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX idx_alerts_created_at ON alerts(created_at);

			CREATE TABLE behavior_events (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				event_type TEXT NOT NULL,
				metadata   TEXT,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX idx_behavior_events_created_at ON behavior_events(created_at);

			CREATE TABLE control_actions (
				id          TEXT PRIMARY KEY,
				tutor_id    TEXT NOT NULL,
				learner_id  TEXT NOT NULL,
				action_type TEXT NOT NULL,
				new_mode    TEXT NOT NULL,
				created_at  DATETIME NOT NULL
			);
		`,
	},
}

// MigrationManager handles database migrations
// FUNCTIONAL DISCOVERY: Manager pattern encapsulates migration state and
// operations, enabling safe schema evolution across environments
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order
// ARCHITECTURAL DISCOVERY: Transaction-based application ensures each
// migration either fully applies or leaves the schema untouched
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if contains(applied, migration.Version) {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// createMigrationTable creates the migration tracking table
func (m *MigrationManager) createMigrationTable() error {
	sql := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(sql)
	return err
}

// getAppliedMigrations returns list of already applied migration versions
func (m *MigrationManager) getAppliedMigrations() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// applyMigration applies a single migration within a transaction
func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
