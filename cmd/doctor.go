// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/health"
	"github.com/kyeo-hub/worktools/internal/slogs"
	"github.com/kyeo-hub/worktools/internal/view"
)

// doctorCmd runs the installation health checks.
func doctorCmd() *cobra.Command {
	var (
		output  string
		timeout time.Duration
		offline bool
	)

	cmd := &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"health", "status"},
		Short:   "Check the WorkTools installation",
		Long: `Check that the plugin directory is writable, the database opens, the version
document is valid and the update and plugin servers answer.`,
		Args: cobra.NoArgs,
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

			checker := health.NewChecker(a.localVersion().Version())
			checker.RegisterCheck("config_file", health.FileCheck("config_file", a.store.Path()))
			checker.RegisterCheck("plugin_dir", health.WritableDirCheck("plugin_dir", a.settings.PluginDir))
			checker.RegisterCheck("version_document", health.VersionDocumentCheck(a.localVersion()))
			var (
				db    *sqlx.DB
				stats health.StatsFunc
			)
			if repo, err := a.database(); err == nil {
				db, stats = repo.DB(), repo.Stats
			} else {
				a.logger.Warn("database unavailable", slogs.Error, err)
			}
			checker.RegisterCheck("database", health.DatabaseCheck(db))
			checker.RegisterCheck("state_store", health.StoreCheck("state_store", stats))

			if !offline {
				c, _, err := a.checker()
				if err != nil {
					return err
				}
				client := &http.Client{Timeout: timeout}
				checker.RegisterCheck("update_server", health.EndpointCheck("update_server", c.URL(), client))
				checker.RegisterCheck("plugin_repository", health.EndpointCheck("plugin_repository", a.settings.Repository.URL, client))
			}

			res := checker.CheckHealth(cmd.Context())
			if err := view.HealthResult(cmd.OutOrStdout(), format, res); err != nil {
				return err
			}
			if res.Status == health.StatusUnhealthy {
				return fmt.Errorf("%d of %d checks failed", countUnhealthy(res), len(res.Checks))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for each server probe")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the server checks")

	return cmd
}

func countUnhealthy(res *health.Result) int {
	n := 0
	for _, c := range res.Checks {
		if c.Status == health.StatusUnhealthy {
			n++
		}
	}
	return n
}
