// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package slogs

// Structured logging keys shared by every package.
const (
	// Core entity keys
	ID   = "id"
	Name = "name"
	Path = "path"
	URL  = "url"
	Dir  = "dir"

	// Plugin system keys
	Plugin    = "plugin"
	Runtime   = "runtime"
	Category  = "category"
	Lifecycle = "lifecycle"
	State     = "state"
	Previous  = "previous"

	// Update keys
	CurrentVersion = "current_version"
	LatestVersion  = "latest_version"
	Mandatory      = "mandatory"
	Silent         = "silent"
	Script         = "script"

	// Status and operation keys
	Status    = "status"
	Error     = "error"
	Count     = "count"
	Size      = "size"
	Duration  = "duration"
	Component = "component"
)
