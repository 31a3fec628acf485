// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PluginStates persists the state map each plugin returns on shutdown.
type PluginStates struct {
	BaseAccessor
	now func() time.Time
}

// Init initializes the plugin state accessor.
func (ps *PluginStates) Init(f Factory) {
	ps.BaseAccessor.Init(f, "plugin_states")
	ps.now = time.Now
}

// Save upserts the state of every plugin in states inside one transaction.
// Plugins absent from states keep their stored state.
func (ps *PluginStates) Save(ctx context.Context, states map[string]map[string]any) error {
	tx, err := ps.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := ps.now().UTC()
	for name, state := range states {
		if err := upsertState(ctx, tx, name, state, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertState(ctx context.Context, tx *sqlx.Tx, name string, state map[string]any, now time.Time) error {
	if state == nil {
		state = map[string]any{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state of %s: %w", name, err)
	}

	query := `
		INSERT INTO plugin_states (plugin, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(plugin) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at`

	if _, err := tx.ExecContext(ctx, query, name, string(data), now); err != nil {
		return fmt.Errorf("save state of %s: %w", name, err)
	}
	return nil
}

// Load returns every stored state keyed by plugin name.
func (ps *PluginStates) Load(ctx context.Context) (map[string]map[string]any, error) {
	var rows []struct {
		Plugin string `db:"plugin"`
		State  string `db:"state"`
	}
	if err := ps.db.SelectContext(ctx, &rows, `SELECT plugin, state FROM plugin_states`); err != nil {
		return nil, err
	}

	states := make(map[string]map[string]any, len(rows))
	for _, r := range rows {
		var state map[string]any
		if err := json.Unmarshal([]byte(r.State), &state); err != nil {
			return nil, fmt.Errorf("decode state of %s: %w", r.Plugin, err)
		}
		if state == nil {
			state = map[string]any{}
		}
		states[r.Plugin] = state
	}
	return states, nil
}

// Get returns the stored state of one plugin. A plugin without stored
// state yields sql.ErrNoRows, see IsNotFound.
func (ps *PluginStates) Get(ctx context.Context, name string) (map[string]any, error) {
	var raw string
	if err := ps.db.GetContext(ctx, &raw, `SELECT state FROM plugin_states WHERE plugin = ?`, name); err != nil {
		return nil, err
	}
	state := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", name, err)
	}
	return state, nil
}

// Delete drops the stored state of a plugin.
func (ps *PluginStates) Delete(ctx context.Context, name string) error {
	_, err := ps.db.ExecContext(ctx, `DELETE FROM plugin_states WHERE plugin = ?`, name)
	return err
}
