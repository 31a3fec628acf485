// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package repository

import "errors"

var (
	// ErrNotInstalled is returned when uninstalling an id with no entry in the
	// plugin directory.
	ErrNotInstalled = errors.New("plugin is not installed")
	// ErrUnknownPackage is returned for ids missing from the catalog.
	ErrUnknownPackage = errors.New("package not in catalog")
	// ErrDependencyCycle is returned when package dependencies loop.
	ErrDependencyCycle = errors.New("dependency cycle")
	// ErrChecksumMismatch is returned when a download's SHA-256 differs from
	// the catalog entry.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
