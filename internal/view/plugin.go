// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package view

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/kyeo-hub/worktools/internal/plugin"
)

// PluginList renders loaded plugins, marking the active one.
func PluginList(w io.Writer, format Format, plugins []plugin.Descriptor, active string) error {
	type listing struct {
		Plugins []plugin.Descriptor `json:"plugins" yaml:"plugins"`
		Active  string              `json:"active,omitempty" yaml:"active,omitempty"`
		Total   int                 `json:"total" yaml:"total"`
	}
	data := listing{Plugins: plugins, Active: active, Total: len(plugins)}
	if data.Plugins == nil {
		data.Plugins = []plugin.Descriptor{}
	}

	return render(w, format, data, func(tw *tabwriter.Writer) {
		if len(plugins) == 0 {
			fmt.Fprintln(tw, "No plugins loaded.")
			return
		}
		fmt.Fprintln(tw, "\tNAME\tCATEGORY\tVERSION\tSTATE\tSOURCE")
		for _, p := range plugins {
			mark := ""
			if p.Name == active {
				mark = "*"
			}
			state := p.State.String()
			if !p.Enabled {
				state += " (disabled)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, p.Name, p.Category, p.Version, state, p.Source)
		}
		fmt.Fprintf(tw, "\nTotal: %d\n", len(plugins))
	})
}

// PluginInfo renders one plugin.
func PluginInfo(w io.Writer, format Format, p plugin.Descriptor) error {
	return render(w, format, p, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
		fmt.Fprintf(tw, "Description:\t%s\n", orDash(p.Description))
		fmt.Fprintf(tw, "Category:\t%s\n", p.Category)
		fmt.Fprintf(tw, "Version:\t%s\n", p.Version)
		fmt.Fprintf(tw, "Enabled:\t%t\n", p.Enabled)
		fmt.Fprintf(tw, "State:\t%s\n", p.State)
		fmt.Fprintf(tw, "Source:\t%s\n", p.Source)
	})
}

// Categories renders the category tree of loaded plugins.
func Categories(w io.Writer, format Format, cats map[string][]string) error {
	names := make([]string, 0, len(cats))
	for c := range cats {
		names = append(names, c)
	}
	sort.Strings(names)

	return render(w, format, cats, func(tw *tabwriter.Writer) {
		if len(names) == 0 {
			fmt.Fprintln(tw, "No plugins loaded.")
			return
		}
		for _, c := range names {
			fmt.Fprintf(tw, "%s (%d)\n", c, len(cats[c]))
			for _, p := range cats[c] {
				fmt.Fprintf(tw, "  %s\n", p)
			}
		}
	})
}
