// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kyeo-hub/worktools/internal/builtin"
	"github.com/kyeo-hub/worktools/internal/config"
	"github.com/kyeo-hub/worktools/internal/dao"
	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/plugin/lua"
	"github.com/kyeo-hub/worktools/internal/plugin/rpc"
	"github.com/kyeo-hub/worktools/internal/repository"
	"github.com/kyeo-hub/worktools/internal/slogs"
	"github.com/kyeo-hub/worktools/internal/update"
	"github.com/kyeo-hub/worktools/pkg/cli"
)

// app holds the services a command works with. Everything past the config
// store is built on demand.
type app struct {
	store    *config.Store
	settings *config.Settings
	logger   *slog.Logger
	term     *cli.Terminal

	db        *dao.SQLiteRepository
	manager   *plugin.Manager
	installer *repository.Installer
	client    *repository.Client
}

func loadSettings() (*config.Settings, error) {
	store, err := config.NewStore(*wtFlags.ConfigFile)
	if err != nil {
		return nil, err
	}
	return store.Load()
}

func newApp(opts ...cli.TerminalOption) (*app, error) {
	store, err := config.NewStore(*wtFlags.ConfigFile)
	if err != nil {
		return nil, err
	}
	settings, err := store.Load()
	if err != nil {
		return nil, err
	}

	opts = append([]cli.TerminalOption{cli.WithOutput(out), cli.WithNoColor(*wtFlags.NoColor)}, opts...)
	return &app{
		store:    store,
		settings: settings,
		logger:   slog.Default(),
		term:     cli.NewTerminal(opts...),
	}, nil
}

// database opens the state database once.
func (a *app) database() (*dao.SQLiteRepository, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := dao.NewSQLiteRepository(a.settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.settings.DatabasePath, err)
	}
	a.db = db
	return db, nil
}

func (a *app) repositoryClient() *repository.Client {
	if a.client == nil {
		a.client = repository.NewClient(
			repository.WithTimeout(a.settings.Repository.Timeout),
			repository.WithLogger(a.logger.With(slogs.Component, "repository")),
		)
	}
	return a.client
}

func (a *app) pluginInstaller() *repository.Installer {
	if a.installer == nil {
		a.installer = repository.NewInstaller(
			a.settings.PluginDir,
			repository.WithDownloadTimeout(a.settings.Update.DownloadTimeout),
			repository.WithInstallerLogger(a.logger.With(slogs.Component, "installer")),
		)
	}
	return a.installer
}

// plugins builds the manager, registers the built-in tools, scans the
// plugin directory and restores saved plugin state.
func (a *app) plugins(ctx context.Context) (*plugin.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}

	if err := os.MkdirAll(a.settings.PluginDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plugin dir: %w", err)
	}

	registry := plugin.NewRegistry()
	if err := builtin.Register(registry, builtin.Deps{
		Client:        a.repositoryClient(),
		Installer:     a.pluginInstaller(),
		RepositoryURL: a.settings.Repository.URL,
		Logger:        a.logger.With(slogs.Component, "catalog"),
	}); err != nil {
		return nil, err
	}

	m := plugin.NewManager(
		plugin.WithLogger(a.logger.With(slogs.Component, "plugins")),
		plugin.WithRegistry(registry),
		plugin.WithLoaders(
			lua.NewLoader(lua.WithLogger(a.logger.With(slogs.Runtime, plugin.RuntimeLua))),
			rpc.NewLoader(rpc.WithLogger(a.logger.With(slogs.Runtime, plugin.RuntimeRPC))),
		),
	)

	m.LoadRegistry(ctx, registry)
	if _, err := m.LoadPlugins(ctx, a.settings.PluginDir); err != nil {
		a.logger.Warn("plugin scan failed", slogs.Dir, a.settings.PluginDir, slogs.Error, err)
	}

	db, err := a.database()
	if err != nil {
		return nil, err
	}
	states, err := db.PluginStates().Load(ctx)
	if err != nil {
		a.logger.Warn("failed to load plugin state", slogs.Error, err)
	} else {
		m.RestoreStates(ctx, states)
	}

	a.manager = m
	return m, nil
}

// catalog returns the plugin catalog tool from the manager.
func (a *app) catalog(ctx context.Context) (*builtin.Catalog, error) {
	m, err := a.plugins(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := m.Get(builtin.CatalogFactory)
	if !ok {
		return nil, fmt.Errorf("%s: %w", builtin.CatalogFactory, plugin.ErrNotFound)
	}
	c, ok := p.(*builtin.Catalog)
	if !ok {
		return nil, fmt.Errorf("%s is not the catalog tool", builtin.CatalogFactory)
	}
	return c, nil
}

func (a *app) localVersion() *update.LocalVersion {
	return update.NewLocalVersion(a.settings.Update.VersionFile)
}

// checker builds the version checker from the update settings.
func (a *app) checker() (*update.Checker, []update.Option, error) {
	opts := []update.Option{
		update.WithURL(a.settings.Update.URL),
		update.WithLogger(a.logger.With(slogs.Component, "update")),
	}
	if key := a.settings.Update.PublicKey; key != "" {
		v, err := update.LoadVerifier(key)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, update.WithVerifier(v))
	}
	return update.NewChecker(a.localVersion(), append(opts, update.WithTimeout(a.settings.Update.Timeout))...), opts, nil
}

// updater builds the self-updater. exit runs once the update script has
// been launched.
func (a *app) updater(exit func()) (*update.Updater, error) {
	checker, opts, err := a.checker()
	if err != nil {
		return nil, err
	}
	downloader := update.NewDownloader(append(opts, update.WithTimeout(a.settings.Update.DownloadTimeout))...)

	uopts := []update.UpdaterOption{
		update.WithNotifier(a.term),
		update.WithUpdaterLogger(a.logger.With(slogs.Component, "updater")),
		update.WithWorkDir(filepath.Join(a.store.BaseDir(), "updates")),
		update.WithExitFunc(exit),
	}
	if db, err := a.database(); err == nil {
		uopts = append(uopts, update.WithHistory(db.UpdateHistory()))
	} else {
		a.logger.Warn("update history disabled", slogs.Error, err)
	}
	return update.NewUpdater(checker, downloader, uopts...), nil
}

// saveStates persists every plugin's state.
func (a *app) saveStates(ctx context.Context) {
	if a.manager == nil || a.db == nil {
		return
	}
	states := a.manager.SaveStates(ctx)
	if err := a.db.PluginStates().Save(ctx, states); err != nil {
		a.logger.Error("failed to save plugin state", slogs.Error, err)
	}
}

func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		a.manager.Shutdown(ctx)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", slogs.Error, err)
		}
	}
}
