// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

// Command worktools-hello is a minimal out-of-process WorkTools plugin.
//
// Build it into a plugin directory next to a manifest:
//
//	runtime: rpc
//	main: worktools-hello
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kyeo-hub/worktools/internal/plugin/rpc"
)

type hello struct {
	Greeted int `json:"greeted"`
}

func (h *hello) Info() (rpc.Info, error) {
	return rpc.Info{
		Name:        "hello",
		Description: "Says hello on activation",
		Category:    "demo",
		Version:     "1.0.0",
		Enabled:     true,
	}, nil
}

func (h *hello) Initialize() error { return nil }

func (h *hello) Activate() error {
	h.Greeted++
	// stdout belongs to the plugin handshake.
	fmt.Fprintf(os.Stderr, "hello #%d\n", h.Greeted)
	return nil
}

func (h *hello) Deactivate() error { return nil }

func (h *hello) SaveState() ([]byte, error) {
	return json.Marshal(h)
}

func (h *hello) RestoreState(state []byte) error {
	return json.Unmarshal(state, h)
}

func main() {
	rpc.Serve(&hello{})
}
