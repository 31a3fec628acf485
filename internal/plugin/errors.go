// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("plugin not found")
	ErrDisabled        = errors.New("plugin is disabled")
	ErrNotActive       = errors.New("plugin is not active")
	ErrDuplicate       = errors.New("plugin already loaded")
	ErrUnnamed         = errors.New("plugin has no name")
	ErrNilPlugin       = errors.New("loader returned no plugin")
	ErrUnknownRuntime  = errors.New("unknown plugin runtime")
	ErrUnknownFactory  = errors.New("unknown builtin factory")
	ErrInvalidManifest = errors.New("invalid plugin manifest")
)

// HookError wraps a failure raised by one of a plugin's lifecycle hooks.
type HookError struct {
	Plugin string
	Hook   string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
