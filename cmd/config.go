// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/config"
	"github.com/kyeo-hub/worktools/internal/view"
)

// configCmd reads and edits the configuration file.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Show and change WorkTools settings",
	}

	cmd.AddCommand(
		configShowCmd(),
		configGetCmd(),
		configSetCmd(),
		configPathCmd(),
	)

	return cmd
}

func configShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseFormat(output)
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			return view.ConfigValues(cmd.OutOrStdout(), format, store.AllSettings())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format (table, json, yaml)")

	return cmd
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if !store.IsKnown(args[0]) {
				return unknownKey(args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.Get(args[0]))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting and save it",
		Example: `  # Check for updates every six hours
  worktools config set update.schedule "0 */6 * * *"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.NewStore(*wtFlags.ConfigFile)
			if err != nil {
				return err
			}
			if !store.IsKnown(args[0]) {
				return unknownKey(args[0])
			}

			store.Set(args[0], args[1])
			if _, err := store.Load(); err != nil {
				return err
			}
			if err := store.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], store.Get(args[0]))
			return nil
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := config.NewStore(*wtFlags.ConfigFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), store.Path())
			return nil
		},
	}
}

// openStore returns a store whose file has been read and validated.
func openStore() (*config.Store, error) {
	store, err := config.NewStore(*wtFlags.ConfigFile)
	if err != nil {
		return nil, err
	}
	if _, err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func unknownKey(key string) error {
	return &config.ValidationError{Field: key, Message: "unknown configuration key"}
}
