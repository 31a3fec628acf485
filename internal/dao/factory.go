// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package dao

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteFactory represents a SQLite database factory.
type SQLiteFactory struct {
	db *sqlx.DB
}

// NewSQLiteFactory creates a new SQLite factory.
func NewSQLiteFactory(dsn string) (*SQLiteFactory, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Configure SQLite connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteFactory{db: db}, nil
}

// DB returns the underlying SQLite database connection.
func (f *SQLiteFactory) DB() *sqlx.DB {
	return f.db
}

// Begin starts a new database transaction.
func (f *SQLiteFactory) Begin() (*sqlx.Tx, error) {
	return f.db.Beginx()
}

// Close closes the database connection.
func (f *SQLiteFactory) Close() error {
	return f.db.Close()
}

// Health checks database connectivity.
func (f *SQLiteFactory) Health() error {
	return f.db.Ping()
}

// WithTransaction executes a function within a database transaction.
func (f *SQLiteFactory) WithTransaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := f.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// SQLiteRepository is the data access layer backed by the WorkTools
// database.
type SQLiteRepository struct {
	*SQLiteFactory

	pluginStates  *PluginStates
	updateHistory *UpdateHistory
}

// NewSQLiteRepository opens the database at path, creating its directory,
// and applies pending migrations.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	factory, err := NewSQLiteFactory(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if err := ApplyMigrations(factory.DB()); err != nil {
		factory.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	states := &PluginStates{}
	states.Init(factory)

	history := &UpdateHistory{}
	history.Init(factory)

	return &SQLiteRepository{
		SQLiteFactory: factory,
		pluginStates:  states,
		updateHistory: history,
	}, nil
}

// PluginStates returns the plugin state accessor.
func (r *SQLiteRepository) PluginStates() *PluginStates {
	return r.pluginStates
}

// UpdateHistory returns the update history accessor.
func (r *SQLiteRepository) UpdateHistory() *UpdateHistory {
	return r.updateHistory
}

// Stats reports the schema version and the row count of each table.
func (r *SQLiteRepository) Stats(ctx context.Context) (map[string]any, error) {
	version, err := SchemaVersion(r.DB())
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}
	stats := map[string]any{
		"schema_version": version,
		"migrations":     len(getAllMigrations()),
	}
	for _, a := range []*BaseAccessor{&r.pluginStates.BaseAccessor, &r.updateHistory.BaseAccessor} {
		n, err := a.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", a.TableName(), err)
		}
		stats[a.TableName()] = n
	}
	return stats, nil
}
