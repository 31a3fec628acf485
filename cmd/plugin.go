// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/plugin"
	"github.com/kyeo-hub/worktools/internal/view"
)

// pluginCmd creates the plugin command
func pluginCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "plugin",
		Aliases: []string{"p", "plugins"},
		Short:   "Inspect loaded plugins",
		Long:    "List loaded plugins, show their details and group them by category",
	}
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")

	cmd.AddCommand(
		pluginListCmd(&output),
		pluginInfoCmd(&output),
		pluginCategoriesCmd(&output),
	)

	return cmd
}

func pluginListCmd(output *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "get"},
		Short:   "List loaded plugins",
		Example: `  # List all plugins
  worktools plugin list

  # List plugins in JSON format
  worktools plugin list --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseFormat(*output)
			if err != nil {
				return err
			}
			a, m, err := openPlugins(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			return view.PluginList(cmd.OutOrStdout(), format, m.List(), m.ActiveName())
		},
	}
}

func pluginInfoCmd(output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show plugin details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := view.ParseFormat(*output)
			if err != nil {
				return err
			}
			a, m, err := openPlugins(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			d, ok := findDescriptor(m.List(), args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], plugin.ErrNotFound)
			}
			return view.PluginInfo(cmd.OutOrStdout(), format, d)
		},
	}
}

func pluginCategoriesCmd(output *string) *cobra.Command {
	return &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cats"},
		Short:   "List plugins grouped by category",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseFormat(*output)
			if err != nil {
				return err
			}
			a, m, err := openPlugins(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			return view.Categories(cmd.OutOrStdout(), format, m.Categories())
		},
	}
}

func openPlugins(cmd *cobra.Command) (*app, *plugin.Manager, error) {
	a, err := newApp()
	if err != nil {
		return nil, nil, err
	}
	m, err := a.plugins(cmd.Context())
	if err != nil {
		a.close(cmd.Context())
		return nil, nil, err
	}
	return a, m, nil
}
