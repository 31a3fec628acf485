// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings represents the complete application configuration
type Settings struct {
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	PluginDir    string `mapstructure:"plugin_dir"`
	DatabasePath string `mapstructure:"database_path"`

	Update     UpdateSettings     `mapstructure:"update"`
	Repository RepositorySettings `mapstructure:"repository"`
}

// UpdateSettings configures the self-updater.
type UpdateSettings struct {
	VersionFile     string        `mapstructure:"version_file"`
	URL             string        `mapstructure:"url"`
	CheckOnStartup  bool          `mapstructure:"check_on_startup"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Schedule        string        `mapstructure:"schedule"`
	Timeout         time.Duration `mapstructure:"timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	PublicKey       string        `mapstructure:"public_key"`
}

// RepositorySettings configures the remote plugin repository.
type RepositorySettings struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Store is the injected configuration store. It wraps a private viper
// instance so nothing reaches for global state.
type Store struct {
	v       *viper.Viper
	path    string
	baseDir string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBaseDir overrides the per-user directory used for default paths.
func WithBaseDir(dir string) StoreOption {
	return func(s *Store) {
		s.baseDir = dir
	}
}

// NewStore creates a store backed by the YAML file at path. An empty path
// selects config.yaml in the per-user directory.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	s := &Store{v: viper.New(), path: path}
	for _, opt := range opts {
		opt(s)
	}

	if s.baseDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		s.baseDir = dir
	}
	if s.path == "" {
		s.path = filepath.Join(s.baseDir, ConfigFileName)
	}

	s.v.SetConfigFile(s.path)
	s.v.SetConfigType("yaml")
	s.v.SetEnvPrefix(strings.ToUpper(AppName))
	s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.v.AutomaticEnv()
	s.setDefaults()

	return s, nil
}

func (s *Store) setDefaults() {
	s.v.SetDefault("log_level", DefaultLogLevel)
	s.v.SetDefault("log_file", filepath.Join(s.baseDir, LogFileName))
	s.v.SetDefault("plugin_dir", filepath.Join(s.baseDir, "plugins"))
	s.v.SetDefault("database_path", filepath.Join(s.baseDir, DatabaseName))

	s.v.SetDefault("update.version_file", defaultVersionFile(s.baseDir))
	s.v.SetDefault("update.url", DefaultUpdateURL)
	s.v.SetDefault("update.check_on_startup", true)
	s.v.SetDefault("update.startup_delay", DefaultStartupDelay)
	s.v.SetDefault("update.schedule", "")
	s.v.SetDefault("update.timeout", DefaultCheckTimeout)
	s.v.SetDefault("update.download_timeout", DefaultDownloadTimeout)
	s.v.SetDefault("update.public_key", "")

	s.v.SetDefault("repository.url", DefaultRepositoryURL)
	s.v.SetDefault("repository.timeout", DefaultCheckTimeout)
}

// defaultVersionFile prefers version.json shipped next to the executable.
func defaultVersionFile(baseDir string) string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), VersionFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(baseDir, VersionFileName)
}

// Path returns the backing config file path.
func (s *Store) Path() string {
	return s.path
}

// BaseDir returns the per-user directory this store resolves defaults from.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Load reads the config file (a missing file is fine) and decodes the
// effective settings.
func (s *Store) Load() (*Settings, error) {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", s.path, err)
		}
	}

	var settings Settings
	if err := s.v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := Validate(&settings); err != nil {
		return nil, err
	}

	return &settings, nil
}

// Get returns a raw configuration value.
func (s *Store) Get(key string) interface{} {
	return s.v.Get(key)
}

// GetString returns a string configuration value
func (s *Store) GetString(key string) string {
	return s.v.GetString(key)
}

// GetBool returns a boolean configuration value
func (s *Store) GetBool(key string) bool {
	return s.v.GetBool(key)
}

// GetDuration returns a duration configuration value
func (s *Store) GetDuration(key string) time.Duration {
	return s.v.GetDuration(key)
}

// IsKnown reports whether key is a recognised setting.
func (s *Store) IsKnown(key string) bool {
	for _, k := range s.v.AllKeys() {
		if k == strings.ToLower(key) {
			return true
		}
	}
	return false
}

// Set sets a configuration value. Call Save to persist it.
func (s *Store) Set(key string, value interface{}) {
	s.v.Set(key, value)
}

// Keys returns every known key, sorted.
func (s *Store) Keys() []string {
	keys := s.v.AllKeys()
	sort.Strings(keys)
	return keys
}

// AllSettings returns the effective settings as a nested map.
func (s *Store) AllSettings() map[string]interface{} {
	return s.v.AllSettings()
}

// Save writes the effective configuration back to the config file.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}
