// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package view

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kyeo-hub/worktools/internal/update"
)

// UpdateResult renders a version check.
func UpdateResult(w io.Writer, format Format, res *update.Result) error {
	return render(w, format, res, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Current version:\t%s\n", res.CurrentVersion)
		fmt.Fprintf(tw, "Latest version:\t%s\n", res.LatestVersion)
		if !res.HasUpdate {
			fmt.Fprintln(tw, "Status:\tup to date")
			return
		}
		status := "update available"
		if res.Mandatory() {
			status += " (mandatory)"
		}
		fmt.Fprintf(tw, "Status:\t%s\n", status)
		if d := res.Descriptor; d != nil {
			if d.PublishedAt != "" {
				fmt.Fprintf(tw, "Published:\t%s\n", d.PublishedAt)
			}
			for i, c := range d.Changelog {
				label := ""
				if i == 0 {
					label = "Changes:"
				}
				fmt.Fprintf(tw, "%s\t- %s\n", label, c)
			}
		}
	})
}

// UpdateHistory renders recorded checks and installs, newest first.
func UpdateHistory(w io.Writer, format Format, entries []update.HistoryEntry) error {
	if entries == nil {
		entries = []update.HistoryEntry{}
	}
	return render(w, format, entries, func(tw *tabwriter.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(tw, "No update history.")
			return
		}
		fmt.Fprintln(tw, "TIME\tKIND\tCURRENT\tLATEST\tOUTCOME\tERROR")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.CreatedAt.Local().Format(time.DateTime),
				e.Kind, orDash(e.CurrentVersion), orDash(e.LatestVersion), e.Outcome, orDash(e.Error))
		}
	})
}
