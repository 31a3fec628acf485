// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package repository reads the remote plugin catalog and installs packages
// from it into the local plugin directory.
package repository

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultCategory is used for packages that declare none.
	DefaultCategory = "other"
	// DefaultVersion is used for packages that declare none.
	DefaultVersion = "1.0.0"
)

// Package is one installable entry of a catalog.
type Package struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Category     string   `json:"category" yaml:"category"`
	Version      string   `json:"version" yaml:"version"`
	Author       string   `json:"author,omitempty" yaml:"author,omitempty"`
	URL          string   `json:"url" yaml:"url"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	FileSize     int64    `json:"file_size" yaml:"file_size"`
	SHA256       string   `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// Catalog is the document served at the repository URL.
type Catalog struct {
	Plugins []Package `json:"plugins" yaml:"plugins"`
}

// ParseCatalog decodes a catalog document and fills in defaults. Entries
// without an id are dropped.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw Catalog
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{Plugins: make([]Package, 0, len(raw.Plugins))}
	for _, p := range raw.Plugins {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			continue
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		if p.Category == "" {
			p.Category = DefaultCategory
		}
		if p.Version == "" {
			p.Version = DefaultVersion
		}
		c.Plugins = append(c.Plugins, p)
	}
	return c, nil
}

// Lookup returns the package with the given id.
func (c *Catalog) Lookup(id string) (Package, bool) {
	if c == nil {
		return Package{}, false
	}
	for _, p := range c.Plugins {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// Categories returns the distinct package categories, sorted.
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, p := range c.Plugins {
		seen[p.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for cat := range seen {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}
