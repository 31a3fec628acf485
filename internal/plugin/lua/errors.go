// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package lua

import "errors"

var (
	// ErrStateClosed is returned when calling into a closed plugin.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrNoPluginTable is returned when a script defines no plugin table.
	ErrNoPluginTable = errors.New("lua script did not return a plugin table")
)
