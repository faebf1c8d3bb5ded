// Package config loads, defaults and validates the server configuration, and
// provides the factories that turn configuration sections into runtime
// collaborators.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configurable aspect of the WebDAV server.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DAVFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Mount Store Pattern:
// The mount list either comes verbatim from the `mounts.static` section or
// from a persistent store selected by `mounts.store.type`; only the section
// matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the HTTP front-end settings
	Server ServerConfig `mapstructure:"server"`

	// Auth selects the authorization policy and the users file
	Auth AuthConfig `mapstructure:"auth"`

	// Mounts defines where mount definitions come from
	Mounts MountsConfig `mapstructure:"mounts"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains the HTTP front-end settings.
type ServerConfig struct {
	// Listen is the address of the WebDAV listener, e.g. ":8080"
	Listen string `mapstructure:"listen" validate:"required"`

	// Realm is the Basic-auth realm presented in challenges
	Realm string `mapstructure:"realm" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MetricsListen exposes Prometheus metrics on a separate listener when
	// set; empty disables metrics entirely
	MetricsListen string `mapstructure:"metrics_listen"`

	// RateLimit bounds the accepted request rate
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is a token bucket definition. A zero sustained rate
// disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second"`
	Burst             uint `mapstructure:"burst"`
}

// AuthConfig selects the authorization policy and the users file.
type AuthConfig struct {
	// Policy selects the authorization model
	// Valid values: static (mount lists only), acl (directory ACL files with
	// static fallback)
	Policy string `mapstructure:"policy" validate:"required,oneof=static acl"`

	// UsersFile is the YAML file holding user names, bcrypt password hashes
	// and group memberships
	UsersFile string `mapstructure:"users_file" validate:"required"`
}

// MountsConfig defines where mount definitions come from.
type MountsConfig struct {
	// Store selects the mount definition source
	Store MountStoreConfig `mapstructure:"store"`

	// Static is the inline mount list, used when Store.Type = "static"
	Static []MountConfig `mapstructure:"static" validate:"dive"`
}

// MountStoreConfig selects and configures the mount definition source.
type MountStoreConfig struct {
	// Type specifies which mount store implementation to use
	// Valid values: static, badger
	Type string `mapstructure:"type" validate:"required,oneof=static badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// MountConfig defines a single mount in the configuration file.
type MountConfig struct {
	// URLPrefix is the URL path prefix the mount serves, e.g. "/pub"
	URLPrefix string `mapstructure:"url_prefix" validate:"required,startswith=/"`

	// LocalRoot is the local directory the mount exposes
	LocalRoot string `mapstructure:"local_root" validate:"required"`

	// Quota is the byte ceiling in humanized form ("100 MiB", "2GB").
	// Empty means unlimited.
	Quota string `mapstructure:"quota"`

	// MaxFiles is the file-count ceiling. 0 means unlimited.
	MaxFiles uint64 `mapstructure:"max_files"`

	// Owner is the username that bypasses every permission check
	Owner string `mapstructure:"owner"`

	// Access lists, one per permission kind. Entries are principal tokens:
	// "*", a bare name, "user:<name>" or "group:<name>". An empty list leaves
	// the kind unrestricted.
	Read    []string `mapstructure:"read"`
	Write   []string `mapstructure:"write"`
	Delete  []string `mapstructure:"delete"`
	NewFile []string `mapstructure:"new_file"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the DAVFS_ prefix with underscores,
// e.g. DAVFS_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DAVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file is
// acceptable; defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/davfs,
// falling back to ~/.config/davfs, then the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "davfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "davfs")
}
