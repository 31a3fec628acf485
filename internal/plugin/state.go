// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

// State is the lifecycle position of a plugin inside the manager.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
	StateActive   State = "active"
	StateInactive State = "inactive"
)

func (s State) String() string {
	return string(s)
}
