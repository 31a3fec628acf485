// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestManager(t *testing.T, plugins ...Plugin) (*Manager, *eventLog) {
	t.Helper()
	m := NewManager()
	log := &eventLog{}
	m.AddListener(log)
	for _, p := range plugins {
		require.NoError(t, m.Register(context.Background(), p))
	}
	log.reset()
	return m, log
}

func writeManifest(t *testing.T, dir, name, body string) {
	t.Helper()
	pluginDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.yaml"), []byte(body), 0o644))
}

func TestManager_LoadPlugins(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("alpha", func() (Plugin, error) { return newFake("alpha", "text"), nil })
	reg.MustRegister("beta", func() (Plugin, error) { return newFake("beta", ""), nil })
	reg.MustRegister("hidden", func() (Plugin, error) { return newFake("hidden", ""), nil })

	dir := t.TempDir()
	writeManifest(t, dir, "alpha", "runtime: builtin\nfactory: alpha\n")
	writeManifest(t, dir, "beta", "runtime: builtin\nfactory: beta\n")
	writeManifest(t, dir, "_hidden", "runtime: builtin\nfactory: hidden\n")
	writeManifest(t, dir, ".cache", "runtime: builtin\nfactory: hidden\n")
	writeManifest(t, dir, "broken", "runtime: cobol\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a plugin"), 0o644))

	m := NewManager(WithRegistry(reg))
	log := &eventLog{}
	m.AddListener(log)

	n, err := m.LoadPlugins(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"loaded:alpha", "loaded:beta", "error:broken"}, log.kinds())

	_, ok := m.Get("hidden")
	assert.False(t, ok)
	assert.Equal(t, StateLoaded, m.State("alpha"))
	assert.Equal(t, map[string][]string{"text": {"alpha"}, "other": {"beta"}}, m.Categories())

	n, err = m.LoadPlugins(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, m.Len())
}

func TestManager_LoadPluginsConcurrentKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	dir := t.TempDir()
	var want []string
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("tool%02d", i)
		reg.MustRegister(name, func() (Plugin, error) { return newFake(name, ""), nil })
		writeManifest(t, dir, name, "runtime: builtin\nfactory: "+name+"\n")
		want = append(want, "loaded:"+name)
	}

	m := NewManager(WithRegistry(reg), WithLoadConcurrency(3))
	log := &eventLog{}
	m.AddListener(log)

	n, err := m.LoadPlugins(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, want, log.kinds())
}

func TestManager_LoadPluginsMissingDir(t *testing.T) {
	m := NewManager()

	n, err := m.LoadPlugins(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_UnknownRuntime(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "scripted", "runtime: lua\nmain: main.lua\n")

	m := NewManager()
	log := &eventLog{}
	m.AddListener(log)

	n, err := m.LoadPlugins(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, log.events, 1)
	assert.ErrorIs(t, log.events[0].Err, ErrUnknownRuntime)
}

func TestManager_InitializeFailure(t *testing.T) {
	p := newFake("flaky", "")
	p.initErr = errBoom

	m := NewManager()
	log := &eventLog{}
	m.AddListener(log)

	err := m.Register(context.Background(), p)
	require.ErrorIs(t, err, errBoom)

	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "initialize", hookErr.Hook)

	assert.Equal(t, StateUnloaded, m.State("flaky"))
	assert.Equal(t, 1, p.count("close"))
	assert.Equal(t, []string{"error:flaky"}, log.kinds())
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m, _ := newTestManager(t, newFake("dup", ""))

	second := newFake("dup", "")
	err := m.Register(context.Background(), second)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Zero(t, second.count("initialize"))
	assert.Equal(t, 1, second.count("close"))
}

func TestManager_ActivateErrors(t *testing.T) {
	disabled := newFake("off", "")
	disabled.SetEnabled(false)

	uu := map[string]struct {
		action func(*Manager) error
		err    error
	}{
		"unknown": {
			action: func(m *Manager) error { return m.Activate(context.Background(), "ghost") },
			err:    ErrNotFound,
		},
		"disabled": {
			action: func(m *Manager) error { return m.Activate(context.Background(), "off") },
			err:    ErrDisabled,
		},
		"deactivate_inactive": {
			action: func(m *Manager) error { return m.Deactivate(context.Background(), "on") },
			err:    ErrNotActive,
		},
		"deactivate_unknown": {
			action: func(m *Manager) error { return m.Deactivate(context.Background(), "ghost") },
			err:    ErrNotFound,
		},
		"unload_unknown": {
			action: func(m *Manager) error { return m.Unload(context.Background(), "ghost") },
			err:    ErrNotFound,
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			m, _ := newTestManager(t, disabled, newFake("on", ""))

			assert.ErrorIs(t, u.action(m), u.err)
			assert.Empty(t, m.ActiveName())
		})
	}
}

func TestManager_ActivateSwitches(t *testing.T) {
	a, b := newFake("a", ""), newFake("b", "")
	m, log := newTestManager(t, a, b)
	ctx := context.Background()

	require.NoError(t, m.Activate(ctx, "a"))
	require.NoError(t, m.Activate(ctx, "a"))
	assert.Equal(t, 1, a.count("activate"))

	require.NoError(t, m.Activate(ctx, "b"))
	assert.Equal(t, 1, a.count("deactivate"))
	assert.Equal(t, StateInactive, m.State("a"))
	assert.Equal(t, StateActive, m.State("b"))
	assert.Equal(t, "b", m.ActiveName())

	active, ok := m.Active()
	require.True(t, ok)
	assert.Same(t, b, active)

	assert.Equal(t, []string{"activated:a", "deactivated:a", "activated:b"}, log.kinds())
}

func TestManager_ActivateFailure(t *testing.T) {
	a, b := newFake("a", ""), newFake("b", "")
	b.panicOn = "activate"
	m, log := newTestManager(t, a, b)
	ctx := context.Background()

	require.NoError(t, m.Activate(ctx, "a"))
	err := m.Activate(ctx, "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activate exploded")

	assert.Empty(t, m.ActiveName())
	assert.Equal(t, StateInactive, m.State("a"))
	assert.Equal(t, StateLoaded, m.State("b"))
	assert.Equal(t, []string{"activated:a", "deactivated:a", "error:b"}, log.kinds())
}

func TestManager_DeactivateFailureStillSwitches(t *testing.T) {
	a, b := newFake("a", ""), newFake("b", "")
	a.deactivateErr = errBoom
	m, log := newTestManager(t, a, b)
	ctx := context.Background()

	require.NoError(t, m.Activate(ctx, "a"))
	require.NoError(t, m.Activate(ctx, "b"))

	assert.Equal(t, "b", m.ActiveName())
	assert.Equal(t, StateInactive, m.State("a"))
	assert.Equal(t, []string{"activated:a", "error:a", "activated:b"}, log.kinds())
}

func TestManager_Unload(t *testing.T) {
	a := newFake("a", "text")
	m, log := newTestManager(t, a)
	ctx := context.Background()

	require.NoError(t, m.Activate(ctx, "a"))
	require.NoError(t, m.Unload(ctx, "a"))

	assert.Equal(t, StateUnloaded, m.State("a"))
	assert.Empty(t, m.ActiveName())
	assert.Empty(t, m.Categories())
	assert.Equal(t, 1, a.count("close"))
	assert.Equal(t, []string{"activated:a", "deactivated:a", "unloaded:a"}, log.kinds())

	require.NoError(t, m.Register(ctx, newFake("a", "")))
}

func TestManager_Shutdown(t *testing.T) {
	a, b := newFake("a", ""), newFake("b", "")
	m, log := newTestManager(t, a, b)
	ctx := context.Background()

	require.NoError(t, m.Activate(ctx, "b"))
	m.Shutdown(ctx)

	assert.Zero(t, m.Len())
	assert.Equal(t, 1, a.count("close"))
	assert.Equal(t, 1, b.count("close"))
	assert.Equal(t, 1, b.count("deactivate"))
	assert.Equal(t, []string{"activated:b", "deactivated:b", "unloaded:a", "unloaded:b"}, log.kinds())
}

func TestManager_SaveRestoreStates(t *testing.T) {
	a, b, c := newFake("a", ""), newFake("b", ""), newFake("c", "")
	b.saveErr = errBoom
	c.state = nil
	m, log := newTestManager(t, a, b, c)
	ctx := context.Background()

	states := m.SaveStates(ctx)
	assert.Equal(t, map[string]map[string]any{
		"a": {"name": "a"},
		"c": {},
	}, states)
	assert.Equal(t, []string{"error:b"}, log.kinds())

	m.RestoreStates(ctx, map[string]map[string]any{
		"a":     {"cursor": float64(3)},
		"ghost": {"x": true},
	})
	assert.Equal(t, map[string]any{"cursor": float64(3)}, a.restored)
	assert.Zero(t, c.count("restore"))
}

func TestManager_List(t *testing.T) {
	b := newFake("b", "net")
	b.SetVersion("2.1.0")
	m, _ := newTestManager(t, b, newFake("a", ""))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, DefaultCategory, list[0].Category)
	assert.Equal(t, DefaultVersion, list[0].Version)
	assert.Equal(t, "builtin:a", list[0].Source)
	assert.Equal(t, Descriptor{
		Name:        "b",
		Description: "b tool",
		Category:    "net",
		Version:     "2.1.0",
		Enabled:     true,
		State:       StateLoaded,
		Source:      "builtin:b",
	}, list[1])
}

func TestManager_RemoveListener(t *testing.T) {
	m := NewManager()
	log := &eventLog{}
	remove := m.AddListener(log)

	require.NoError(t, m.Register(context.Background(), newFake("a", "")))
	remove()
	require.NoError(t, m.Register(context.Background(), newFake("b", "")))

	assert.Equal(t, []string{"loaded:a"}, log.kinds())
}

func TestManager_LoadRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("a", func() (Plugin, error) { return newFake("a", ""), nil })
	reg.MustRegister("bad", func() (Plugin, error) { return nil, errBoom })

	m := NewManager()
	assert.Equal(t, 1, m.LoadRegistry(context.Background(), reg))
	assert.Zero(t, m.LoadRegistry(context.Background(), reg))
	assert.Equal(t, 1, m.Len())
}

func TestManager_NilPlugin(t *testing.T) {
	ghost := func() (Plugin, error) { return nil, nil }

	uu := map[string]struct {
		load func(*testing.T, *Manager, *Registry)
	}{
		"registry": {
			load: func(t *testing.T, m *Manager, reg *Registry) {
				assert.Zero(t, m.LoadRegistry(context.Background(), reg))
			},
		},
		"scan": {
			load: func(t *testing.T, m *Manager, _ *Registry) {
				dir := t.TempDir()
				writeManifest(t, dir, "ghost", "runtime: builtin\nfactory: ghost\n")
				n, err := m.LoadPlugins(context.Background(), dir)
				require.NoError(t, err)
				assert.Zero(t, n)
			},
		},
		"register": {
			load: func(t *testing.T, m *Manager, _ *Registry) {
				assert.ErrorIs(t, m.Register(context.Background(), nil), ErrNilPlugin)
			},
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			reg := NewRegistry()
			reg.MustRegister("ghost", ghost)
			m := NewManager(WithRegistry(reg))
			log := &eventLog{}
			m.AddListener(log)

			u.load(t, m, reg)

			assert.Zero(t, m.Len())
			require.Len(t, log.events, 1)
			assert.Equal(t, EventError, log.events[0].Type)
			assert.ErrorIs(t, log.events[0].Err, ErrNilPlugin)
		})
	}
}

// Rescanning a directory never loads anything twice.
func TestManager_LoadIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "plugins")
		scans := rapid.IntRange(1, 4).Draw(t, "scans")

		reg := NewRegistry()
		dir, err := os.MkdirTemp("", "plugins")
		require.NoError(t, err)
		defer os.RemoveAll(dir)

		for i := 0; i < n; i++ {
			name := fmt.Sprintf("p%d", i)
			reg.MustRegister(name, func() (Plugin, error) { return newFake(name, ""), nil })
			body := fmt.Sprintf("runtime: builtin\nfactory: %s\n", name)
			require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, name, "plugin.yml"), []byte(body), 0o644))
		}

		m := NewManager(WithRegistry(reg))
		total := 0
		for i := 0; i < scans; i++ {
			loaded, err := m.LoadPlugins(context.Background(), dir)
			require.NoError(t, err)
			total += loaded
		}
		assert.Equal(t, n, total)
		assert.Equal(t, n, m.Len())
	})
}

// Whatever the activation sequence, at most one plugin is active and every
// activation is matched by exactly one deactivation before the next.
func TestManager_SingleActiveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "plugins")
		fakes := make([]*fakePlugin, n)
		m := NewManager()
		for i := range fakes {
			fakes[i] = newFake(fmt.Sprintf("p%d", i), "")
			require.NoError(t, m.Register(context.Background(), fakes[i]))
		}

		ops := rapid.SliceOfN(rapid.IntRange(-1, n-1), 1, 30).Draw(t, "ops")
		want := ""
		for _, op := range ops {
			if op < 0 {
				if want != "" {
					require.NoError(t, m.Deactivate(context.Background(), want))
					want = ""
				}
				continue
			}
			require.NoError(t, m.Activate(context.Background(), fakes[op].Name()))
			want = fakes[op].Name()
		}

		assert.Equal(t, want, m.ActiveName())
		active := 0
		for _, f := range fakes {
			diff := f.count("activate") - f.count("deactivate")
			if m.State(f.Name()) == StateActive {
				active++
				assert.Equal(t, 1, diff)
			} else {
				assert.Equal(t, 0, diff)
			}
		}
		assert.LessOrEqual(t, active, 1)
	})
}
