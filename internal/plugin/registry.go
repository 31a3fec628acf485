// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh plugin instance.
type Factory func() (Plugin, error)

// Registry maps names to plugin factories. It replaces any form of runtime
// code lookup: a builtin plugin is reachable only if it was registered here.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering the same name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("register factory: %w", ErrUnnamed)
	}
	if f == nil {
		return fmt.Errorf("register factory %s: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register factory %s: %w", name, ErrDuplicate)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register for package init paths.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// New instantiates the named factory.
func (r *Registry) New(name string) (Plugin, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFactory, name)
	}
	return f()
}

// Names lists the registered factories, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
