// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"context"
)

const (
	// DefaultCategory is used when a plugin does not name one.
	DefaultCategory = "other"
	// DefaultVersion is used when a plugin does not declare a version.
	DefaultVersion = "1.0.0"
)

// Plugin is the contract every tool implements, regardless of runtime.
type Plugin interface {
	Name() string
	Description() string
	Category() string
	Version() string
	Enabled() bool

	// Initialize runs once, right after the plugin is loaded.
	Initialize(ctx context.Context) error
	OnActivate(ctx context.Context) error
	OnDeactivate(ctx context.Context) error

	// SaveState returns data that must survive a restart. The map must be
	// JSON encodable.
	SaveState(ctx context.Context) (map[string]any, error)
	RestoreState(ctx context.Context, state map[string]any) error

	// Close releases anything the plugin holds. It is called on unload and
	// shutdown.
	Close() error
}

// Base provides default metadata and no-op hooks. Embed it and override what
// the plugin needs.
type Base struct {
	name        string
	description string
	category    string
	version     string
	disabled    bool
}

// NewBase returns a Base with the default category and version.
func NewBase(name, description string) Base {
	return Base{
		name:        name,
		description: description,
		category:    DefaultCategory,
		version:     DefaultVersion,
	}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

func (b *Base) Category() string {
	if b.category == "" {
		return DefaultCategory
	}
	return b.category
}

func (b *Base) Version() string {
	if b.version == "" {
		return DefaultVersion
	}
	return b.version
}

func (b *Base) Enabled() bool { return !b.disabled }

// SetCategory changes the category the plugin is grouped under.
func (b *Base) SetCategory(category string) { b.category = category }

// SetVersion changes the declared version.
func (b *Base) SetVersion(version string) { b.version = version }

// SetEnabled toggles whether the plugin may be activated.
func (b *Base) SetEnabled(enabled bool) { b.disabled = !enabled }

func (b *Base) Initialize(context.Context) error   { return nil }
func (b *Base) OnActivate(context.Context) error   { return nil }
func (b *Base) OnDeactivate(context.Context) error { return nil }

func (b *Base) SaveState(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

func (b *Base) RestoreState(context.Context, map[string]any) error { return nil }

func (b *Base) Close() error { return nil }

// Descriptor is a read-only snapshot of a loaded plugin.
type Descriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	Version     string `json:"version" yaml:"version"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	State       State  `json:"state" yaml:"state"`
	Source      string `json:"source" yaml:"source"`
}
