// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

// Loader implements plugin.Loader for the rpc runtime.
type Loader struct {
	logger *slog.Logger
	stderr io.Writer
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger for the rpc loader
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithStderr redirects plugin process stderr.
func WithStderr(w io.Writer) Option {
	return func(l *Loader) {
		l.stderr = w
	}
}

// NewLoader creates an rpc loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		logger: slog.Default(),
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Runtime() string { return plugin.RuntimeRPC }

// Load starts the plugin executable and dispenses its lifecycle.
func (l *Loader) Load(_ context.Context, src plugin.Source) (plugin.Plugin, error) {
	execPath := src.MainPath()
	if _, err := os.Stat(execPath); err != nil {
		return nil, fmt.Errorf("plugin executable not found: %w", err)
	}

	var args []string
	var env []string
	if src.Manifest != nil {
		args = src.Manifest.Args
		keys := make([]string, 0, len(src.Manifest.Env))
		for k := range src.Manifest.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+src.Manifest.Env[k])
		}
	}

	cmd := exec.Command(execPath, args...)
	cmd.Env = append(os.Environ(), env...)

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap(nil),
		Cmd:              cmd,
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           l.hclogger(src.Module),
		Stderr:           l.stderr,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	lifecycle, ok := raw.(Lifecycle)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin does not implement the lifecycle interface")
	}

	p, err := NewRemote(lifecycle, src, client.Kill)
	if err != nil {
		client.Kill()
		return nil, err
	}

	l.logger.Debug("rpc plugin started", slogs.Plugin, p.Name(), slogs.Path, execPath)
	return p, nil
}

func (l *Loader) hclogger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "plugin." + name,
		Level:  hclog.Warn,
		Output: l.stderr,
	})
}

// Remote adapts a Lifecycle to plugin.Plugin.
type Remote struct {
	impl Lifecycle
	info Info
	kill func()

	once sync.Once
}

var _ plugin.Plugin = (*Remote)(nil)

// NewRemote queries impl for its metadata. Empty fields fall back to the
// manifest and then to the package defaults. kill is run on Close.
func NewRemote(impl Lifecycle, src plugin.Source, kill func()) (*Remote, error) {
	info, err := impl.Info()
	if err != nil {
		return nil, fmt.Errorf("plugin info: %w", err)
	}

	var m plugin.Manifest
	if src.Manifest != nil {
		m = *src.Manifest
	}
	fill := func(v *string, fallbacks ...string) {
		for _, f := range fallbacks {
			if *v != "" {
				return
			}
			*v = f
		}
	}
	fill(&info.Name, m.Name, src.Module)
	fill(&info.Description, m.Description)
	fill(&info.Category, m.Category, plugin.DefaultCategory)
	fill(&info.Version, m.Version, plugin.DefaultVersion)

	return &Remote{impl: impl, info: info, kill: kill}, nil
}

func (r *Remote) Name() string        { return r.info.Name }
func (r *Remote) Description() string { return r.info.Description }
func (r *Remote) Category() string    { return r.info.Category }
func (r *Remote) Version() string     { return r.info.Version }
func (r *Remote) Enabled() bool       { return r.info.Enabled }

func (r *Remote) Initialize(context.Context) error   { return r.impl.Initialize() }
func (r *Remote) OnActivate(context.Context) error   { return r.impl.Activate() }
func (r *Remote) OnDeactivate(context.Context) error { return r.impl.Deactivate() }

func (r *Remote) SaveState(context.Context) (map[string]any, error) {
	data, err := r.impl.SaveState()
	if err != nil {
		return nil, err
	}
	state := map[string]any{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode plugin state: %w", err)
	}
	return state, nil
}

func (r *Remote) RestoreState(_ context.Context, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode plugin state: %w", err)
	}
	return r.impl.RestoreState(data)
}

// Close stops the plugin process.
func (r *Remote) Close() error {
	r.once.Do(func() {
		if r.kill != nil {
			r.kill()
		}
	})
	return nil
}
