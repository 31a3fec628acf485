// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/builtin"
	"github.com/kyeo-hub/worktools/internal/repository"
	"github.com/kyeo-hub/worktools/internal/view"
)

// repoCmd drives the plugin catalog from the command line.
func repoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repo",
		Aliases: []string{"catalog", "store"},
		Short:   "Browse and install plugins from the plugin repository",
	}

	cmd.AddCommand(
		repoListCmd(),
		repoInstallCmd(),
		repoUninstallCmd(),
		repoSetURLCmd(),
	)

	return cmd
}

func repoListCmd() *cobra.Command {
	var output, search, category string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "search"},
		Short:   "List catalog plugins",
		Example: `  # List every plugin in the catalog
  worktools repo list

  # Search by name or description within a category
  worktools repo list --search json --category text`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseFormat(output)
			if err != nil {
				return err
			}
			a, c, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			if err := c.Refresh(cmd.Context()); err != nil {
				return err
			}
			return view.CatalogEntries(cmd.OutOrStdout(), format, c.RepositoryURL(), c.Entries(search, category))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show plugins whose name or description contains this text")
	cmd.Flags().StringVarP(&category, "category", "c", repository.AllCategories, "Only show plugins in this category")

	return cmd
}

func repoInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <id>",
		Short: "Install a plugin and its missing dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, c, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			if err := c.Refresh(cmd.Context()); err != nil {
				return err
			}
			installed, err := c.Install(cmd.Context(), args[0], a.term.Progress)
			a.term.Done()
			if err != nil {
				return err
			}
			a.term.Success("Installed", strings.Join(installed, ", "))
			return nil
		},
	}
}

func repoUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <id>",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove an installed plugin",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.pluginInstaller().Uninstall(args[0]); err != nil {
				return err
			}
			a.term.Success("Uninstalled", args[0])
			return nil
		},
	}
}

// repoSetURLCmd stores the catalog URL in the config file and in the
// catalog's saved state, which would otherwise win on the next start.
func repoSetURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-url <url>",
		Short: "Change the plugin repository URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, c, err := openCatalog(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			a.store.Set("repository.url", args[0])
			if _, err := a.store.Load(); err != nil {
				return err
			}
			if err := a.store.Save(); err != nil {
				return err
			}

			c.SetRepositoryURL(args[0])
			a.saveStates(cmd.Context())
			a.term.Success("Repository", fmt.Sprintf("Plugin repository set to %s", args[0]))
			return nil
		},
	}
}

func openCatalog(cmd *cobra.Command) (*app, *builtin.Catalog, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	c, err := a.catalog(cmd.Context())
	if err != nil {
		a.close(cmd.Context())
		return nil, nil, err
	}
	return a, c, nil
}
