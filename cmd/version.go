// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	command := cobra.Command{
		Use:   "version",
		Short: "Print version/build info",
		Long:  "Print version/build information",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout(), short)
		},
	}

	command.PersistentFlags().BoolVarP(&short, "short", "s", false, "Prints WorkTools version info in short format")

	return &command
}

func printVersion(w io.Writer, short bool) {
	const fmat = "%-20s %s\n"

	if short {
		fmt.Fprintf(w, "WorkTools %s\n", version)
		return
	}

	printLogo(w)
	fmt.Fprintf(w, fmat, "Version:", version)
	fmt.Fprintf(w, fmat, "Commit:", commit)
	fmt.Fprintf(w, fmat, "Date:", date)
}

func printLogo(w io.Writer) {
	logo := `
 __        __         _    _____           _
 \ \      / /__  _ __| | _|_   _|__   ___ | |___
  \ \ /\ / / _ \| '__| |/ / | |/ _ \ / _ \| / __|
   \ V  V / (_) | |  |   <  | | (_) | (_) | \__ \
    \_/\_/ \___/|_|  |_|\_\ |_|\___/ \___/|_|___/

Plugin Host for Work Tools
`
	fmt.Fprint(w, logo)
}
