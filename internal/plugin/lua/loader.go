// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package lua

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

// DefaultTimeout bounds a single script load or hook call.
const DefaultTimeout = 5 * time.Second

// Loader implements plugin.Loader for the lua runtime.
type Loader struct {
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger scripts write to through worktools.log.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithTimeout bounds each script call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		l.timeout = d
	}
}

// NewLoader creates a Lua loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Runtime() string { return plugin.RuntimeLua }

// Load runs the script at src.MainPath and wraps the plugin table it yields.
func (l *Loader) Load(ctx context.Context, src plugin.Source) (plugin.Plugin, error) {
	path := src.MainPath()
	logger := l.logger.With(slogs.Plugin, src.Module, slogs.Runtime, plugin.RuntimeLua)

	L := newState(logger)

	top := L.GetTop()
	err := withContext(ctx, L, l.timeout, func() error {
		return L.DoFile(path)
	})
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("run %s: %w", path, err)
	}

	var table *lua.LTable
	if L.GetTop() > top {
		table, _ = L.Get(top + 1).(*lua.LTable)
		L.SetTop(top)
	}
	if table == nil {
		table, _ = L.GetGlobal("plugin").(*lua.LTable)
	}
	if table == nil {
		L.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNoPluginTable)
	}

	p := &Plugin{
		L:       L,
		table:   table,
		path:    path,
		timeout: l.timeout,
	}
	p.readMetadata(src)

	logger.Debug("lua plugin loaded", slogs.Name, p.name, slogs.Path, path)
	return p, nil
}

// newState opens a restricted Lua state with the worktools module installed.
func newState(logger *slog.Logger) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	logAt := func(level slog.Level) lua.LGFunction {
		return func(L *lua.LState) int {
			logger.Log(context.Background(), level, L.CheckString(1))
			return 0
		}
	}
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"log":   logAt(slog.LevelInfo),
		"debug": logAt(slog.LevelDebug),
		"warn":  logAt(slog.LevelWarn),
		"error": logAt(slog.LevelError),
	})
	L.SetGlobal("worktools", mod)

	return L
}

// withContext runs fn with ctx (bounded by timeout) attached to L so that a
// runaway script is interrupted.
func withContext(ctx context.Context, L *lua.LState, timeout time.Duration, fn func() error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	L.SetContext(ctx)
	defer L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
