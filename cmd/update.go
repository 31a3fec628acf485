// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/dao"
	"github.com/kyeo-hub/worktools/internal/view"
)

// updateCmd checks for and installs new releases.
func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "update",
		Aliases: []string{"upgrade"},
		Short:   "Check for and install WorkTools updates",
	}

	cmd.AddCommand(
		updateCheckCmd(),
		updateApplyCmd(),
		updateHistoryCmd(),
	)

	return cmd
}

func updateCheckCmd() *cobra.Command {
	var (
		output string
		silent bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the running version with the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseFormat(output)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			u, err := a.updater(nil)
			if err != nil {
				return err
			}
			// The result is rendered below, so the notifier stays quiet.
			res, err := u.Check(cmd.Context(), true)
			if err != nil {
				return err
			}
			if silent && !res.HasUpdate {
				return nil
			}
			return view.UpdateResult(cmd.OutOrStdout(), format, res)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&silent, "silent", "s", false, "Only print something when an update is available")

	return cmd
}

func updateApplyCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Download and install the latest release",
		Long: `Download and install the latest release. The running binary is replaced by a
helper script once this command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			u, err := a.updater(func() {
				a.term.Success("Update", "The installer is running. WorkTools will restart when it is done.")
			})
			if err != nil {
				return err
			}
			res, err := u.Check(cmd.Context(), false)
			if err != nil || !res.HasUpdate {
				return err
			}
			if yes {
				return u.Apply(cmd.Context(), res)
			}
			return u.Offer(cmd.Context(), res)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Install without asking")

	return cmd
}

func updateHistoryCmd() *cobra.Command {
	var (
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update checks and installs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := view.ParseFormat(output)
			if err != nil {
				return err
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			db, err := a.database()
			if err != nil {
				return err
			}
			entries, err := db.UpdateHistory().List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return view.UpdateHistory(cmd.OutOrStdout(), format, entries)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().IntVarP(&limit, "limit", "n", dao.DefaultHistoryLimit, "Number of entries to show")

	return cmd
}
