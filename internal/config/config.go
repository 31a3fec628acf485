// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

// Package config provides configuration management for WorkTools
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	AppName         = "worktools"
	OrgName         = "WorkTools"
	DefaultLogLevel = "info"
	ConfigFileName  = "config.yaml"
	LogFileName     = "worktools.log"
	DatabaseName    = "worktools.db"
	VersionFileName = "version.json"

	DefaultUpdateURL       = "https://tools.kyeo.top/updates/version.json"
	DefaultRepositoryURL   = "https://tools.kyeo.top/plugins/plugins.json"
	DefaultStartupDelay    = 5 * time.Second
	DefaultCheckTimeout    = 10 * time.Second
	DefaultDownloadTimeout = 30 * time.Second
)

// Flags represents CLI flags
type Flags struct {
	LogLevel   *string
	LogFile    *string
	ConfigFile *string
	NoColor    *bool
}

// NewFlags creates a new Flags instance
func NewFlags() *Flags {
	logLevel := DefaultLogLevel

	return &Flags{
		LogLevel:   &logLevel,
		LogFile:    new(string),
		ConfigFile: new(string),
		NoColor:    new(bool),
	}
}

// Dir returns the per-user WorkTools directory. It resolves to %APPDATA% on
// Windows, ~/Library/Application Support on macOS and $XDG_CONFIG_HOME (or
// ~/.config) elsewhere.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("resolve user config dir: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, OrgName), nil
}

// PluginDir returns the per-user plugin directory, creating it if needed.
func PluginDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(dir, "plugins"))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}
