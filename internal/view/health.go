// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package view

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kyeo-hub/worktools/internal/health"
)

// HealthResult renders the doctor report.
func HealthResult(w io.Writer, format Format, res *health.Result) error {
	return render(w, format, res, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "CHECK\tSTATUS\tMESSAGE\tTOOK")
		for _, c := range res.Checks {
			msg := c.Message
			if c.Error != "" {
				msg += ": " + c.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Status, msg, c.Duration.Round(time.Millisecond))
		}
		fmt.Fprintf(tw, "\nOverall: %s (version %s)\n", res.Status, res.Version)
	})
}
