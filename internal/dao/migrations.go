// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package dao

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// ApplyMigrations applies all database migrations
func ApplyMigrations(db *sqlx.DB) error {
	if err := createMigrationTable(db); err != nil {
		return err
	}

	for _, migration := range getAllMigrations() {
		applied, err := isMigrationApplied(db, migration.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := applyMigration(db, migration); err != nil {
			return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func SchemaVersion(db *sqlx.DB) (int, error) {
	var version int
	err := db.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	return version, err
}

func createMigrationTable(db *sqlx.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := db.Exec(query)
	return err
}

func isMigrationApplied(db *sqlx.DB, version int) (bool, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version)
	return count > 0, err
}

func applyMigration(db *sqlx.DB, migration Migration) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		migration.Version, migration.Name,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// getAllMigrations returns all database migrations in order
func getAllMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_plugin_states_table",
			SQL: `
			CREATE TABLE IF NOT EXISTS plugin_states (
				plugin TEXT PRIMARY KEY,
				state TEXT NOT NULL, -- JSON object
				updated_at DATETIME NOT NULL
			);
			`,
		},
		{
			Version: 2,
			Name:    "create_update_history_table",
			SQL: `
			CREATE TABLE IF NOT EXISTS update_history (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL CHECK (kind IN ('check', 'apply')),
				current_version TEXT NOT NULL DEFAULT '',
				latest_version TEXT NOT NULL DEFAULT '',
				outcome TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_update_history_created_at ON update_history(created_at);
			`,
		},
	}
}
