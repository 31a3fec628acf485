// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/rpc"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyeo-hub/worktools/internal/plugin"
)

type fakeLifecycle struct {
	info        Info
	activateErr error
	calls       []string
	state       []byte
}

func (f *fakeLifecycle) Info() (Info, error) { return f.info, nil }

func (f *fakeLifecycle) Initialize() error {
	f.calls = append(f.calls, "initialize")
	return nil
}

func (f *fakeLifecycle) Activate() error {
	f.calls = append(f.calls, "activate")
	return f.activateErr
}

func (f *fakeLifecycle) Deactivate() error {
	f.calls = append(f.calls, "deactivate")
	return nil
}

func (f *fakeLifecycle) SaveState() ([]byte, error) { return f.state, nil }

func (f *fakeLifecycle) RestoreState(state []byte) error {
	f.state = state
	return nil
}

// connect wires a Client to a Server over an in-memory pipe.
func connect(t *testing.T, impl Lifecycle) *Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("Plugin", &Server{Impl: impl}))
	go server.ServeConn(serverConn)

	c := rpc.NewClient(clientConn)
	t.Cleanup(func() { _ = c.Close() })
	return &Client{client: c}
}

func TestClientServer_RoundTrip(t *testing.T) {
	impl := &fakeLifecycle{
		info:  Info{Name: "hello", Category: "demo", Enabled: true},
		state: []byte(`{"greeted":3}`),
	}
	c := connect(t, impl)

	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, impl.info, info)

	require.NoError(t, c.Initialize())
	require.NoError(t, c.Activate())
	require.NoError(t, c.Deactivate())
	assert.Equal(t, []string{"initialize", "activate", "deactivate"}, impl.calls)

	state, err := c.SaveState()
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeted":3}`, string(state))

	require.NoError(t, c.RestoreState([]byte(`{"greeted":9}`)))
	assert.JSONEq(t, `{"greeted":9}`, string(impl.state))
}

func TestClientServer_Error(t *testing.T) {
	c := connect(t, &fakeLifecycle{activateErr: errors.New("port in use")})

	err := c.Activate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
}

func TestRemote_Fallbacks(t *testing.T) {
	uu := map[string]struct {
		info     Info
		manifest *plugin.Manifest
		want     Info
	}{
		"reported": {
			info: Info{Name: "a", Description: "d", Category: "c", Version: "2.0.0", Enabled: true},
			want: Info{Name: "a", Description: "d", Category: "c", Version: "2.0.0", Enabled: true},
		},
		"manifest": {
			manifest: &plugin.Manifest{Name: "m", Category: "tools", Version: "0.3.0"},
			want:     Info{Name: "m", Category: "tools", Version: "0.3.0"},
		},
		"module": {
			want: Info{Name: "mod", Category: plugin.DefaultCategory, Version: plugin.DefaultVersion},
		},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			r, err := NewRemote(&fakeLifecycle{info: u.info}, plugin.Source{Module: "mod", Manifest: u.manifest}, nil)
			require.NoError(t, err)
			assert.Equal(t, u.want, r.info)
		})
	}
}

func TestRemote_State(t *testing.T) {
	impl := &fakeLifecycle{info: Info{Name: "hello"}}
	c := connect(t, impl)

	killed := 0
	r, err := NewRemote(c, plugin.Source{}, func() { killed++ })
	require.NoError(t, err)
	ctx := context.Background()

	state, err := r.SaveState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, r.RestoreState(ctx, map[string]any{"lang": "go"}))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(impl.state, &decoded))
	assert.Equal(t, map[string]any{"lang": "go"}, decoded)

	state, err = r.SaveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lang": "go"}, state)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, killed)
}

func TestLoader_MissingExecutable(t *testing.T) {
	dir := t.TempDir()
	src := plugin.Source{
		Module:   "ghost",
		Path:     dir,
		Runtime:  plugin.RuntimeRPC,
		Manifest: &plugin.Manifest{Runtime: plugin.RuntimeRPC, Main: "bin/ghost"},
	}

	_, err := NewLoader().Load(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), filepath.Join("bin", "ghost"))
}
