// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Runtimes a manifest may select.
const (
	RuntimeLua     = "lua"
	RuntimeRPC     = "rpc"
	RuntimeBuiltin = "builtin"
)

var manifestNames = []string{"plugin.yaml", "plugin.yml"}

// Manifest describes a directory plugin.
type Manifest struct {
	Name        string            `yaml:"name" json:"name"`
	Version     string            `yaml:"version" json:"version"`
	Description string            `yaml:"description" json:"description"`
	Category    string            `yaml:"category" json:"category"`
	Runtime     string            `yaml:"runtime" json:"runtime"`
	Main        string            `yaml:"main" json:"main"`
	Args        []string          `yaml:"args" json:"args"`
	Env         map[string]string `yaml:"env" json:"env"`
	Factory     string            `yaml:"factory" json:"factory"`
}

// ReadManifest looks for plugin.yaml or plugin.yml in dir. It returns a nil
// manifest and no error when the directory has neither.
func ReadManifest(dir string) (*Manifest, error) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", path, err)
		}
		return ParseManifest(data)
	}
	return nil, nil
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the runtime is known and has what it needs.
func (m *Manifest) Validate() error {
	switch m.Runtime {
	case RuntimeLua, RuntimeRPC:
		if m.Main == "" {
			return fmt.Errorf("%w: runtime %s requires main", ErrInvalidManifest, m.Runtime)
		}
	case RuntimeBuiltin:
		if m.Factory == "" {
			return fmt.Errorf("%w: runtime builtin requires factory", ErrInvalidManifest)
		}
	case "":
		return fmt.Errorf("%w: runtime is required", ErrInvalidManifest)
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidManifest, ErrUnknownRuntime, m.Runtime)
	}
	return nil
}
