// SPDX-License-Identifier: MIT
// Copyright Authors of WorkTools

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/kyeo-hub/worktools/internal/config"
	"github.com/kyeo-hub/worktools/internal/slogs"
	"github.com/kyeo-hub/worktools/internal/update"
	"github.com/kyeo-hub/worktools/pkg/cli"
)

const (
	appName      = config.AppName
	shortAppDesc = "A plugin host for everyday work tools."
	longAppDesc  = "WorkTools loads tool plugins, switches between them and keeps itself up to date."
)

var (
	version, commit, date = "dev", "dev", "N/A"
	wtFlags               *config.Flags
	detailedErrors        bool

	rootCmd = &cobra.Command{
		Use:           appName,
		Short:         shortAppDesc,
		Long:          longAppDesc,
		RunE:          runShell,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	out io.Writer = colorable.NewColorableStdout()

	logFile *os.File
)

type flagError struct{ err error }

func (e flagError) Error() string { return e.err.Error() }

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return initLogging(cmd)
	}
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		closeLogging()
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return flagError{err: err}
	})

	rootCmd.AddCommand(
		versionCmd(),
		runCmd(),
		pluginCmd(),
		repoCmd(),
		updateCmd(),
		configCmd(),
		doctorCmd(),
	)

	initFlags()
}

// Execute root command.
func Execute() {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}
	if errors.As(err, &flagError{}) {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, cmd.UsageString())
		os.Exit(2)
	}

	slog.Error("Command execution failed", slogs.Error, err)
	closeLogging()
	if !update.Notified(err) {
		cli.NewErrorHandler(detailedErrors, *wtFlags.NoColor).HandleError(err, cmd.Name())
	}
	os.Exit(1)
}

func initFlags() {
	wtFlags = config.NewFlags()

	rootCmd.PersistentFlags().StringVarP(
		wtFlags.LogLevel,
		"logLevel", "l",
		config.DefaultLogLevel,
		"Specify a log level (error, warn, info, debug)",
	)
	rootCmd.PersistentFlags().StringVarP(
		wtFlags.LogFile,
		"logFile", "",
		"",
		"Specify the log file",
	)
	rootCmd.PersistentFlags().StringVarP(
		wtFlags.ConfigFile,
		"config", "",
		"",
		"Path to the configuration file to use for WorkTools",
	)
	rootCmd.PersistentFlags().BoolVar(
		wtFlags.NoColor,
		"noColor",
		false,
		"Turn colored output off",
	)
	rootCmd.PersistentFlags().BoolVar(
		&detailedErrors,
		"verbose-errors",
		false,
		"Show the full cause chain of errors",
	)
}

// initLogging points the default logger at the log file. The flag wins over
// the configured file and level.
func initLogging(cmd *cobra.Command) error {
	if *wtFlags.NoColor {
		color.NoColor = true
	}

	levelSet := cmd.Flags().Changed("logLevel")
	path, level := *wtFlags.LogFile, *wtFlags.LogLevel
	if path == "" || !levelSet {
		if settings, err := loadSettings(); err == nil {
			if path == "" {
				path = settings.LogFile
			}
			if !levelSet {
				level = settings.LogLevel
			}
		}
	}
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, config.LogFileName)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("log file %q init failed: %w", path, err)
	}
	logFile = f

	slog.SetDefault(slog.New(tint.NewHandler(f, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})))
	return nil
}

func closeLogging() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// recoverBoom logs a panic escaping a command and turns it into an error.
func recoverBoom(err *error) {
	if r := recover(); r != nil {
		slog.Error("Boom!! WorkTools crashed", slogs.Error, r)
		slog.Error("Stack trace", "stack", string(debug.Stack()))
		*err = fmt.Errorf("unexpected failure: %v", r)
	}
}
