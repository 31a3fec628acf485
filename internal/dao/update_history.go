// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package dao

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kyeo-hub/worktools/internal/update"
)

// DefaultHistoryLimit caps List when no limit is given.
const DefaultHistoryLimit = 50

// UpdateHistory stores the outcome of every update check and apply.
type UpdateHistory struct {
	BaseAccessor
}

var _ update.HistoryRecorder = (*UpdateHistory)(nil)

// Init initializes the update history accessor.
func (uh *UpdateHistory) Init(f Factory) {
	uh.BaseAccessor.Init(f, "update_history")
}

// Record inserts entry, assigning an id and timestamp when missing.
func (uh *UpdateHistory) Record(ctx context.Context, entry update.HistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	query := `
		INSERT INTO update_history (id, kind, current_version, latest_version, outcome, error, created_at)
		VALUES (:id, :kind, :current_version, :latest_version, :outcome, :error, :created_at)`

	_, err := uh.db.NamedExecContext(ctx, query, entry)
	return err
}

// List returns the most recent entries first. A limit of zero or less uses
// DefaultHistoryLimit.
func (uh *UpdateHistory) List(ctx context.Context, limit int) ([]update.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
		SELECT id, kind, current_version, latest_version, outcome, error, created_at
		FROM update_history
		ORDER BY created_at DESC
		LIMIT ?`

	var entries []update.HistoryEntry
	if err := uh.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, err
	}
	return entries, nil
}
