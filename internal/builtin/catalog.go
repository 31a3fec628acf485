// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package builtin holds the plugins compiled into WorkTools.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/repository"
	"github.com/kyeo-hub/worktools/internal/slogs"
)

const (
	// CatalogFactory is the registry name of the plugin catalog.
	CatalogFactory = "plugin-catalog"

	catalogCategory = "system"

	stateRepositoryURL = "repository_url"
	stateLastRefresh   = "last_refresh"
)

// Deps are the services built-in plugins draw on.
type Deps struct {
	Client        *repository.Client
	Installer     *repository.Installer
	RepositoryURL string
	Logger        *slog.Logger
}

// Register adds every built-in factory to reg.
func Register(reg *plugin.Registry, deps Deps) error {
	return reg.Register(CatalogFactory, func() (plugin.Plugin, error) {
		return NewCatalog(deps), nil
	})
}

// Entry is a catalog package annotated with its local install status.
type Entry struct {
	repository.Package
	Installed bool `json:"installed" yaml:"installed"`
}

// Catalog browses the plugin repository and installs packages from it.
type Catalog struct {
	plugin.Base

	client    *repository.Client
	installer *repository.Installer
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	url         string
	refreshed   bool
	lastRefresh time.Time
	lastErr     error
	catalog     *repository.Catalog
}

var _ plugin.Plugin = (*Catalog)(nil)

// NewCatalog returns the plugin catalog tool.
func NewCatalog(deps Deps) *Catalog {
	c := &Catalog{
		Base:      plugin.NewBase(CatalogFactory, "Browse, install and remove plugins from the plugin repository"),
		client:    deps.Client,
		installer: deps.Installer,
		logger:    deps.Logger,
		url:       deps.RepositoryURL,
		now:       time.Now,
	}
	if c.client == nil {
		c.client = repository.NewClient()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.SetCategory(catalogCategory)
	return c
}

// OnActivate refreshes the catalog the first time the tool is shown. A
// failed refresh leaves the tool usable and is reported by Err.
func (c *Catalog) OnActivate(ctx context.Context) error {
	c.mu.Lock()
	refreshed := c.refreshed
	c.mu.Unlock()
	if refreshed {
		return nil
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("Plugin catalog refresh failed", slogs.Plugin, c.Name(), slogs.Error, err)
	}
	return nil
}

// Refresh fetches the catalog from the repository URL.
func (c *Catalog) Refresh(ctx context.Context) error {
	url := c.RepositoryURL()
	cat, err := c.client.Fetch(ctx, url)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed = true
	c.lastErr = err
	if err != nil {
		return err
	}
	c.catalog = cat
	c.lastRefresh = c.now().UTC()
	return nil
}

// Err returns the outcome of the last refresh.
func (c *Catalog) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// RepositoryURL returns the catalog location.
func (c *Catalog) RepositoryURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// SetRepositoryURL points the tool at another catalog. The next activation
// refreshes from it.
func (c *Catalog) SetRepositoryURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if url == c.url {
		return
	}
	c.url = url
	c.refreshed = false
	c.catalog = nil
}

// LastRefresh returns when the catalog was last fetched successfully.
func (c *Catalog) LastRefresh() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}

// Entries returns the filtered catalog with install status.
func (c *Catalog) Entries(search, category string) []Entry {
	c.mu.Lock()
	cat := c.catalog
	c.mu.Unlock()
	if cat == nil {
		return nil
	}

	pkgs := repository.Filter(cat.Plugins, search, category)
	out := make([]Entry, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, Entry{Package: p, Installed: c.installer != nil && c.installer.IsInstalled(p.ID)})
	}
	return out
}

// Categories returns the catalog categories.
func (c *Catalog) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Categories()
}

// Install installs id and its missing dependencies. Newly installed plugins
// are picked up on the next start.
func (c *Catalog) Install(ctx context.Context, id string, progress repository.ProgressFunc) ([]string, error) {
	if c.installer == nil {
		return nil, fmt.Errorf("plugin catalog: no plugin directory configured")
	}
	c.mu.Lock()
	cat := c.catalog
	c.mu.Unlock()
	if cat == nil {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		cat = c.catalog
		c.mu.Unlock()
	}
	return c.installer.Install(ctx, cat, id, progress)
}

// Uninstall removes id from the plugin directory.
func (c *Catalog) Uninstall(id string) error {
	if c.installer == nil {
		return fmt.Errorf("plugin catalog: no plugin directory configured")
	}
	return c.installer.Uninstall(id)
}

// View renders a short status summary.
func (c *Catalog) View() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", c.url)
	switch {
	case c.lastErr != nil:
		fmt.Fprintf(&b, "Failed to fetch plugin list: %v\n", c.lastErr)
	case c.catalog == nil:
		b.WriteString("Catalog not loaded\n")
	default:
		installed := 0
		for _, p := range c.catalog.Plugins {
			if c.installer != nil && c.installer.IsInstalled(p.ID) {
				installed++
			}
		}
		fmt.Fprintf(&b, "Found %d plugins, %d installed\n", len(c.catalog.Plugins), installed)
	}
	return b.String()
}

// SaveState persists the repository URL and the last refresh time.
func (c *Catalog) SaveState(context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := map[string]any{stateRepositoryURL: c.url}
	if !c.lastRefresh.IsZero() {
		state[stateLastRefresh] = c.lastRefresh.Format(time.RFC3339)
	}
	return state, nil
}

// RestoreState applies a state saved by SaveState. Unknown or malformed
// values are ignored.
func (c *Catalog) RestoreState(_ context.Context, state map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if url, ok := state[stateRepositoryURL].(string); ok && url != "" {
		c.url = url
	}
	if raw, ok := state[stateLastRefresh].(string); ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			c.lastRefresh = t
		}
	}
	return nil
}
