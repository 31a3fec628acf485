// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/kyeo-hub/worktools/internal/pool"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

// Manager owns every loaded plugin and enforces that at most one is active.
//
// Transitions are serialised by an operation lock. Listeners run on the
// calling goroutine after the transition has been committed and must not
// start another transition from inside the callback.
type Manager struct {
	logger  *slog.Logger
	loaders map[string]Loader
	events  *dispatcher

	op   sync.Mutex
	scan sync.Mutex

	concurrency int

	mx         sync.RWMutex
	plugins    map[string]*instance
	sources    map[string]string
	categories map[string][]string
	active     string
}

type instance struct {
	plugin Plugin
	source string
	state  State
}

// ManagerOption configures the plugin manager
type ManagerOption func(*Manager)

// WithLogger sets the logger for the plugin manager
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithLoaders registers runtime loaders. A later loader for the same runtime
// replaces an earlier one.
func WithLoaders(loaders ...Loader) ManagerOption {
	return func(m *Manager) {
		for _, l := range loaders {
			m.loaders[l.Runtime()] = l
		}
	}
}

// WithLoadConcurrency bounds how many plugins a scan loads at once.
func WithLoadConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		m.concurrency = n
	}
}

// WithRegistry enables builtin manifests backed by r.
func WithRegistry(r *Registry) ManagerOption {
	return WithLoaders(NewRegistryLoader(r))
}

// NewManager creates a new plugin manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:      slog.Default(),
		concurrency: pool.DefaultPoolSize,
		loaders:     make(map[string]Loader),
		events:      newDispatcher(),
		plugins:     make(map[string]*instance),
		sources:     make(map[string]string),
		categories:  make(map[string][]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// AddListener subscribes l to lifecycle events. The returned func removes it.
func (m *Manager) AddListener(l Listener) (remove func()) {
	return m.events.add(l)
}

// LoadPlugins scans dir once and loads every plugin it has not seen before.
// Sources are loaded concurrently, then initialised and reported in name
// order. A failing entry is reported through an error event and skipped. A
// missing directory loads nothing.
func (m *Manager) LoadPlugins(ctx context.Context, dir string) (int, error) {
	m.scan.Lock()
	defer m.scan.Unlock()

	m.logger.Debug("scanning plugin directory", slogs.Dir, dir)

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("plugin directory does not exist", slogs.Dir, dir)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read plugin directory %s: %w", dir, err)
	}

	var pending []*scanResult
	for _, e := range entries {
		name := e.Name()
		if skipEntry(name) {
			continue
		}

		src, ok, err := sourceFor(dir, name, e.IsDir())
		if err != nil {
			pending = append(pending, &scanResult{src: Source{Module: name}, hook: "discover", err: err})
			continue
		}
		if !ok {
			continue
		}

		m.mx.RLock()
		_, seen := m.sources[src.Path]
		m.mx.RUnlock()
		if seen {
			m.logger.Debug("plugin source already loaded", slogs.Path, src.Path)
			continue
		}
		pending = append(pending, &scanResult{src: src, hook: "load"})
	}

	wp := pool.NewNamedWorkerPool(ctx, m.concurrency, "plugin-loader")
	for _, r := range pending {
		if r.err != nil {
			continue
		}
		wp.Add(func(ctx context.Context) error {
			r.plugin, r.err = m.load(ctx, r.src)
			return r.err
		})
	}
	wp.Drain()

	loaded := 0
	for i, r := range pending {
		if err := ctx.Err(); err != nil {
			for _, rest := range pending[i:] {
				if rest.plugin != nil {
					closeQuietly(rest.plugin)
				}
			}
			return loaded, err
		}
		if r.err != nil {
			m.fail(r.src.Module, r.hook, r.err)
			continue
		}

		m.op.Lock()
		ok, err := m.install(ctx, r.plugin, r.src.Path)
		m.op.Unlock()
		if err != nil {
			m.emitError(r.src.Module, err)
		}
		if ok {
			loaded++
		}
	}

	m.logger.Info("plugin scan completed", slogs.Dir, dir, slogs.Count, loaded)
	return loaded, nil
}

// scanResult carries one discovered source through a directory scan.
type scanResult struct {
	src    Source
	hook   string
	plugin Plugin
	err    error
}

// load instantiates src with its runtime's loader.
func (m *Manager) load(ctx context.Context, src Source) (Plugin, error) {
	loader, ok := m.loaders[src.Runtime]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuntime, src.Runtime)
	}

	var p Plugin
	err := guard(func() error {
		var lerr error
		p, lerr = loader.Load(ctx, src)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Register adds an already constructed plugin, initialising it first.
func (m *Manager) Register(ctx context.Context, p Plugin) error {
	m.op.Lock()
	defer m.op.Unlock()

	name := safeName(p)
	ok, err := m.install(ctx, p, "builtin:"+name)
	if err != nil {
		m.emitError(name, err)
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	return nil
}

// LoadRegistry instantiates every factory in r that has not been loaded yet.
func (m *Manager) LoadRegistry(ctx context.Context, r *Registry) int {
	loaded := 0
	for _, name := range r.Names() {
		src := "builtin:" + name

		m.mx.RLock()
		_, seen := m.sources[src]
		m.mx.RUnlock()
		if seen {
			continue
		}

		p, err := r.New(name)
		if err != nil {
			m.fail(name, "load", err)
			continue
		}

		m.op.Lock()
		ok, err := m.install(ctx, p, src)
		m.op.Unlock()
		if err != nil {
			m.emitError(name, err)
		}
		if ok {
			loaded++
		}
	}
	return loaded
}

// install initialises p and records it. It reports false without error when
// a plugin with the same name is already present. Callers hold m.op.
func (m *Manager) install(ctx context.Context, p Plugin, source string) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("load %s: %w", source, ErrNilPlugin)
	}
	name := safeName(p)
	if name == "" {
		closeQuietly(p)
		return false, fmt.Errorf("load %s: %w", source, ErrUnnamed)
	}

	m.mx.RLock()
	_, exists := m.plugins[name]
	m.mx.RUnlock()
	if exists {
		m.logger.Debug("plugin already loaded", slogs.Plugin, name, slogs.Path, source)
		closeQuietly(p)
		m.mx.Lock()
		m.sources[source] = name
		m.mx.Unlock()
		return false, nil
	}

	if err := m.call(name, "initialize", func() error { return p.Initialize(ctx) }); err != nil {
		closeQuietly(p)
		return false, err
	}

	category := safeString(p.Category, DefaultCategory)

	m.mx.Lock()
	m.plugins[name] = &instance{plugin: p, source: source, state: StateLoaded}
	m.sources[source] = name
	names := append(m.categories[category], name)
	sort.Strings(names)
	m.categories[category] = names
	m.mx.Unlock()

	m.logger.Info("plugin loaded",
		slogs.Plugin, name,
		slogs.Category, category,
		slogs.Path, source)
	m.events.fire(Event{Type: EventLoaded, Plugin: name})
	return true, nil
}

// Activate makes name the single active plugin. Activating the already
// active plugin does nothing. A previously active plugin is deactivated
// first.
func (m *Manager) Activate(ctx context.Context, name string) error {
	m.op.Lock()
	defer m.op.Unlock()

	inst := m.lookup(name)
	if inst == nil {
		m.logger.Warn("activate unknown plugin", slogs.Plugin, name)
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !safeBool(inst.plugin.Enabled) {
		return fmt.Errorf("%w: %s", ErrDisabled, name)
	}

	m.mx.RLock()
	previous := m.active
	m.mx.RUnlock()

	if previous == name {
		return nil
	}
	if previous != "" {
		// A failing previous plugin is reported but does not block the switch.
		_ = m.deactivate(ctx, previous)
	}

	if err := m.call(name, "activate", func() error { return inst.plugin.OnActivate(ctx) }); err != nil {
		m.emitError(name, err)
		return err
	}

	m.mx.Lock()
	inst.state = StateActive
	m.active = name
	m.mx.Unlock()

	m.logger.Info("plugin activated", slogs.Plugin, name, slogs.Previous, previous)
	m.events.fire(Event{Type: EventActivated, Plugin: name})
	return nil
}

// Deactivate deactivates name, which must be the active plugin.
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	m.op.Lock()
	defer m.op.Unlock()

	return m.deactivate(ctx, name)
}

func (m *Manager) deactivate(ctx context.Context, name string) error {
	inst := m.lookup(name)
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	m.mx.RLock()
	active := m.active
	m.mx.RUnlock()
	if active != name {
		m.logger.Warn("deactivate inactive plugin", slogs.Plugin, name)
		return fmt.Errorf("%w: %s", ErrNotActive, name)
	}

	err := m.call(name, "deactivate", func() error { return inst.plugin.OnDeactivate(ctx) })

	m.mx.Lock()
	inst.state = StateInactive
	m.active = ""
	m.mx.Unlock()

	if err != nil {
		m.emitError(name, err)
		return err
	}

	m.logger.Info("plugin deactivated", slogs.Plugin, name)
	m.events.fire(Event{Type: EventDeactivated, Plugin: name})
	return nil
}

// Unload deactivates name if needed, closes it and forgets it.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.op.Lock()
	defer m.op.Unlock()

	inst := m.lookup(name)
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if m.ActiveName() == name {
		_ = m.deactivate(ctx, name)
	}
	return m.unload(name, inst)
}

func (m *Manager) unload(name string, inst *instance) error {
	err := m.call(name, "close", inst.plugin.Close)

	m.mx.Lock()
	delete(m.plugins, name)
	for source, owner := range m.sources {
		if owner == name {
			delete(m.sources, source)
		}
	}
	for category, names := range m.categories {
		kept := names[:0]
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			delete(m.categories, category)
		} else {
			m.categories[category] = kept
		}
	}
	m.mx.Unlock()

	if err != nil {
		m.emitError(name, err)
	}
	m.logger.Info("plugin unloaded", slogs.Plugin, name)
	m.events.fire(Event{Type: EventUnloaded, Plugin: name})
	return err
}

// Shutdown deactivates the active plugin and unloads everything.
func (m *Manager) Shutdown(ctx context.Context) {
	m.op.Lock()
	defer m.op.Unlock()

	if active := m.ActiveName(); active != "" {
		_ = m.deactivate(ctx, active)
	}

	for _, name := range m.names() {
		if inst := m.lookup(name); inst != nil {
			_ = m.unload(name, inst)
		}
	}
}

// SaveStates collects every plugin's persistent state. Plugins whose save
// hook fails are left out.
func (m *Manager) SaveStates(ctx context.Context) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, name := range m.names() {
		inst := m.lookup(name)
		if inst == nil {
			continue
		}

		var state map[string]any
		err := m.call(name, "save state", func() error {
			var serr error
			state, serr = inst.plugin.SaveState(ctx)
			return serr
		})
		if err != nil {
			m.emitError(name, err)
			continue
		}
		if state == nil {
			state = map[string]any{}
		}
		out[name] = state
	}
	return out
}

// RestoreStates hands saved state back to loaded plugins. Entries for
// plugins that are not loaded are ignored.
func (m *Manager) RestoreStates(ctx context.Context, states map[string]map[string]any) {
	for name, state := range states {
		inst := m.lookup(name)
		if inst == nil {
			m.logger.Debug("skipping state for unknown plugin", slogs.Plugin, name)
			continue
		}
		err := m.call(name, "restore state", func() error {
			return inst.plugin.RestoreState(ctx, state)
		})
		if err != nil {
			m.emitError(name, err)
		}
	}
}

// Get returns the named plugin.
func (m *Manager) Get(name string) (Plugin, bool) {
	inst := m.lookup(name)
	if inst == nil {
		return nil, false
	}
	return inst.plugin, true
}

// Active returns the active plugin, if any.
func (m *Manager) Active() (Plugin, bool) {
	name := m.ActiveName()
	if name == "" {
		return nil, false
	}
	return m.Get(name)
}

// ActiveName returns the active plugin's name or "".
func (m *Manager) ActiveName() string {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.active
}

// State returns the lifecycle state of name.
func (m *Manager) State(name string) State {
	m.mx.RLock()
	defer m.mx.RUnlock()

	inst, ok := m.plugins[name]
	if !ok {
		return StateUnloaded
	}
	return inst.state
}

// Len returns the number of loaded plugins.
func (m *Manager) Len() int {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return len(m.plugins)
}

// List describes every loaded plugin, sorted by name.
func (m *Manager) List() []Descriptor {
	m.mx.RLock()
	defer m.mx.RUnlock()

	out := make([]Descriptor, 0, len(m.plugins))
	for name, inst := range m.plugins {
		out = append(out, Descriptor{
			Name:        name,
			Description: safeString(inst.plugin.Description, ""),
			Category:    safeString(inst.plugin.Category, DefaultCategory),
			Version:     safeString(inst.plugin.Version, DefaultVersion),
			Enabled:     safeBool(inst.plugin.Enabled),
			State:       inst.state,
			Source:      inst.source,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Categories returns plugin names grouped by category.
func (m *Manager) Categories() map[string][]string {
	m.mx.RLock()
	defer m.mx.RUnlock()

	out := make(map[string][]string, len(m.categories))
	for category, names := range m.categories {
		out[category] = append([]string(nil), names...)
	}
	return out
}

func (m *Manager) lookup(name string) *instance {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.plugins[name]
}

func (m *Manager) names() []string {
	m.mx.RLock()
	defer m.mx.RUnlock()

	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// call runs one plugin hook, turning panics into errors.
func (m *Manager) call(name, hook string, fn func() error) error {
	if err := guard(fn); err != nil {
		return &HookError{Plugin: name, Hook: hook, Err: err}
	}
	return nil
}

func (m *Manager) fail(name, hook string, err error) {
	m.emitError(name, &HookError{Plugin: name, Hook: hook, Err: err})
}

func (m *Manager) emitError(name string, err error) {
	m.logger.Error("plugin error", slogs.Plugin, name, slogs.Error, err)
	m.events.fire(Event{Type: EventError, Plugin: name, Message: err.Error(), Err: err})
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func closeQuietly(p Plugin) {
	if p != nil {
		_ = guard(p.Close)
	}
}

func safeName(p Plugin) string {
	if p == nil {
		return ""
	}
	return safeString(p.Name, "")
}

func safeString(fn func() string, fallback string) (s string) {
	defer func() {
		if recover() != nil {
			s = fallback
		}
	}()
	if s = fn(); s == "" {
		s = fallback
	}
	return s
}

func safeBool(fn func() bool) (b bool) {
	defer func() {
		if recover() != nil {
			b = false
		}
	}()
	return fn()
}
