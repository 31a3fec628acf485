// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"context"
	"path/filepath"
	"strings"
)

// Source identifies one discovered plugin entry.
type Source struct {
	// Module is the entry name without extension.
	Module string
	// Path is the file or directory that was discovered.
	Path string
	// Runtime selects the Loader.
	Runtime string
	// Manifest is set for directory plugins.
	Manifest *Manifest
}

// MainPath resolves the manifest's main entry relative to the plugin
// directory. For single-file plugins it is the file itself.
func (s Source) MainPath() string {
	if s.Manifest == nil || s.Manifest.Main == "" {
		return s.Path
	}
	if filepath.IsAbs(s.Manifest.Main) {
		return s.Manifest.Main
	}
	return filepath.Join(s.Path, s.Manifest.Main)
}

// Loader instantiates plugins for one runtime.
type Loader interface {
	Runtime() string
	Load(ctx context.Context, src Source) (Plugin, error)
}

// RegistryLoader resolves builtin manifests against a Registry.
type RegistryLoader struct {
	registry *Registry
}

// NewRegistryLoader creates a loader for the builtin runtime.
func NewRegistryLoader(r *Registry) *RegistryLoader {
	return &RegistryLoader{registry: r}
}

func (l *RegistryLoader) Runtime() string { return RuntimeBuiltin }

func (l *RegistryLoader) Load(_ context.Context, src Source) (Plugin, error) {
	return l.registry.New(src.Manifest.Factory)
}

// sourceFor maps a directory entry onto a Source. ok is false for entries
// that are not plugins at all.
func sourceFor(dir, name string, isDir bool) (src Source, ok bool, err error) {
	path := filepath.Join(dir, name)

	if isDir {
		m, err := ReadManifest(path)
		if err != nil || m == nil {
			return Source{}, false, err
		}
		return Source{Module: name, Path: path, Runtime: m.Runtime, Manifest: m}, true, nil
	}

	if strings.EqualFold(filepath.Ext(name), ".lua") {
		return Source{
			Module:  strings.TrimSuffix(name, filepath.Ext(name)),
			Path:    path,
			Runtime: RuntimeLua,
		}, true, nil
	}
	return Source{}, false, nil
}

func skipEntry(name string) bool {
	return strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")
}
