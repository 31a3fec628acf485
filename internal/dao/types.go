// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package dao

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Factory represents a resource factory for SQLite operations.
type Factory interface {
	// DB returns the underlying SQLite database connection.
	DB() *sqlx.DB

	// Begin starts a new database transaction.
	Begin() (*sqlx.Tx, error)

	// Close closes the database connection.
	Close() error

	// Health checks database connectivity.
	Health() error
}

// BaseAccessor provides common functionality for all accessors.
type BaseAccessor struct {
	factory Factory
	db      *sqlx.DB
	table   string
}

// Init initializes the accessor with a factory.
func (b *BaseAccessor) Init(f Factory, tableName string) {
	b.factory = f
	b.db = f.DB()
	b.table = tableName
}

// DB returns the database connection.
func (b *BaseAccessor) DB() *sqlx.DB {
	return b.db
}

// TableName returns the database table name.
func (b *BaseAccessor) TableName() string {
	return b.table
}

// Count returns the number of rows in the accessor's table.
func (b *BaseAccessor) Count(ctx context.Context) (int, error) {
	var count int
	err := b.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+b.table)
	return count, err
}

// IsNotFound checks if an error represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
