// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package view

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kyeo-hub/worktools/internal/builtin"
	"github.com/kyeo-hub/worktools/internal/repository"
)

// CatalogEntries renders the plugin catalog with install status.
func CatalogEntries(w io.Writer, format Format, url string, entries []builtin.Entry) error {
	type listing struct {
		Repository string          `json:"repository" yaml:"repository"`
		Plugins    []builtin.Entry `json:"plugins" yaml:"plugins"`
	}
	data := listing{Repository: url, Plugins: entries}
	if data.Plugins == nil {
		data.Plugins = []builtin.Entry{}
	}

	return render(w, format, data, func(tw *tabwriter.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(tw, "No plugins match.")
			return
		}
		installed := 0
		fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tVERSION\tSIZE\tSTATUS")
		for _, e := range entries {
			status := "available"
			if e.Installed {
				status = "installed"
				installed++
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.Name, e.Category, e.Version, repository.FormatSize(e.FileSize), status)
		}
		fmt.Fprintf(tw, "\nFound %d plugins, %d installed\n", len(entries), installed)
	})
}
