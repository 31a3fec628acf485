// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package view

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// ConfigValues renders flattened configuration keys and their values.
func ConfigValues(w io.Writer, format Format, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return render(w, format, values, func(tw *tabwriter.Writer) {
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%v\n", k, values[k])
		}
	})
}
