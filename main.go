// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package main

import (
	"flag"
	"log/slog"

	"github.com/kyeo-hub/worktools/cmd"
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	handler := slog.NewTextHandler(flag.CommandLine.Output(), opts)
	slog.SetDefault(slog.New(handler))
}

func main() {
	cmd.Execute()
}
