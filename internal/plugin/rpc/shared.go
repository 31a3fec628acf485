// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package rpc runs WorkTools plugins as separate executables speaking
// go-plugin's net/rpc protocol.
package rpc

import (
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

// PluginName is the key plugin binaries serve their lifecycle under.
const PluginName = "lifecycle"

// Handshake is used to verify that a binary really is a WorkTools plugin.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "WORKTOOLS_PLUGIN",
	MagicCookieValue: "worktools-lifecycle-v1",
}

// Info is the metadata a remote plugin reports about itself.
type Info struct {
	Name        string
	Description string
	Category    string
	Version     string
	Enabled     bool
}

// Lifecycle is implemented inside plugin binaries. State crosses the wire as
// JSON.
type Lifecycle interface {
	Info() (Info, error)
	Initialize() error
	Activate() error
	Deactivate() error
	SaveState() ([]byte, error)
	RestoreState(state []byte) error
}

// LifecyclePlugin is the go-plugin glue for Lifecycle.
type LifecyclePlugin struct {
	Impl Lifecycle
}

func (p *LifecyclePlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &Server{Impl: p.Impl}, nil
}

func (p *LifecyclePlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &Client{client: c}, nil
}

// PluginMap is the set of plugins the host can dispense.
func PluginMap(impl Lifecycle) map[string]goplugin.Plugin {
	return map[string]goplugin.Plugin{
		PluginName: &LifecyclePlugin{Impl: impl},
	}
}

// Serve runs impl as a plugin binary. It blocks until the host disconnects.
func Serve(impl Lifecycle) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap(impl),
	})
}
