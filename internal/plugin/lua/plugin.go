// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package lua

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/kyeo-hub/worktools/internal/plugin"
)

// Hook names looked up on the plugin table.
const (
	hookInitialize   = "initialize"
	hookActivate     = "on_activate"
	hookDeactivate   = "on_deactivate"
	hookSaveState    = "save_state"
	hookRestoreState = "restore_state"
	hookClose        = "close"
)

// Plugin adapts a Lua plugin table to plugin.Plugin. An LState is not safe
// for concurrent use so every call is serialised.
type Plugin struct {
	mu      sync.Mutex
	L       *lua.LState
	table   *lua.LTable
	path    string
	timeout time.Duration
	closed  bool

	name        string
	description string
	category    string
	version     string
	enabled     bool
}

var _ plugin.Plugin = (*Plugin)(nil)

func (p *Plugin) readMetadata(src plugin.Source) {
	str := func(key, fallback string) string {
		if s, ok := p.table.RawGetString(key).(lua.LString); ok && s != "" {
			return string(s)
		}
		return fallback
	}

	var m plugin.Manifest
	if src.Manifest != nil {
		m = *src.Manifest
	}

	p.name = str("name", firstNonEmpty(m.Name, src.Module))
	p.description = str("description", m.Description)
	p.category = str("category", firstNonEmpty(m.Category, plugin.DefaultCategory))
	p.version = str("version", firstNonEmpty(m.Version, plugin.DefaultVersion))

	p.enabled = true
	if b, ok := p.table.RawGetString("enabled").(lua.LBool); ok {
		p.enabled = bool(b)
	}
}

func (p *Plugin) Name() string        { return p.name }
func (p *Plugin) Description() string { return p.description }
func (p *Plugin) Category() string    { return p.category }
func (p *Plugin) Version() string     { return p.version }
func (p *Plugin) Enabled() bool       { return p.enabled }

// Path returns the script the plugin was loaded from.
func (p *Plugin) Path() string { return p.path }

func (p *Plugin) Initialize(ctx context.Context) error {
	_, err := p.call(ctx, hookInitialize)
	return err
}

func (p *Plugin) OnActivate(ctx context.Context) error {
	_, err := p.call(ctx, hookActivate)
	return err
}

func (p *Plugin) OnDeactivate(ctx context.Context) error {
	_, err := p.call(ctx, hookDeactivate)
	return err
}

func (p *Plugin) SaveState(ctx context.Context) (map[string]any, error) {
	ret, err := p.call(ctx, hookSaveState)
	if err != nil {
		return nil, err
	}

	switch v := toGo(ret).(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case []any:
		if len(v) == 0 {
			return map[string]any{}, nil
		}
	}
	return nil, fmt.Errorf("%s must return a table with string keys, got %s", hookSaveState, ret.Type())
}

func (p *Plugin) RestoreState(ctx context.Context, state map[string]any) error {
	p.mu.Lock()
	arg := toLua(p.L, state)
	p.mu.Unlock()

	_, err := p.call(ctx, hookRestoreState, arg)
	return err
}

// Close runs the close hook, if any, and releases the Lua state.
func (p *Plugin) Close() error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}

	_, err := p.call(context.Background(), hookClose)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.L.Close()
	}
	return err
}

// call invokes hook with the table as self. Missing hooks return nil.
func (p *Plugin) call(ctx context.Context, hook string, args ...lua.LValue) (lua.LValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return lua.LNil, ErrStateClosed
	}

	fnVal := p.table.RawGetString(hook)
	if fnVal == lua.LNil {
		return lua.LNil, nil
	}
	fn, ok := fnVal.(*lua.LFunction)
	if !ok {
		return lua.LNil, fmt.Errorf("%s is not a function (got %s)", hook, fnVal.Type())
	}

	var ret lua.LValue = lua.LNil
	err := withContext(ctx, p.L, p.timeout, func() error {
		callArgs := append([]lua.LValue{p.table}, args...)
		if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, callArgs...); err != nil {
			return err
		}
		ret = p.L.Get(-1)
		p.L.Pop(1)
		return nil
	})
	return ret, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
