// Package config defines the resultoor configuration file format and
// loading logic. Files are YAML; every key can be overridden through
// RESULTOOR_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultSessionTTL is the default session lifetime.
	DefaultSessionTTL = "24h"
)

// Config is the root configuration for resultoor.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	API    *APIConfig   `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// Load reads and merges one or more YAML configuration files in order,
// applies RESULTOOR_ environment variable overrides, and fills in
// defaults. Later files win over earlier ones.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one config file is required")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RESULTOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(paths[0])
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", paths[0], err)
	}

	for _, path := range paths[1:] {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.API == nil {
		return
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}

	if c.API.Auth.SessionTTL == "" {
		c.API.Auth.SessionTTL = DefaultSessionTTL
	}

	if c.API.Sources.Cache.ListingTTL == "" {
		c.API.Sources.Cache.ListingTTL = DefaultListingTTL
	}

	if c.API.Sources.Cache.DetailTTL == "" {
		c.API.Sources.Cache.DetailTTL = DefaultDetailTTL
	}

	if c.API.GitHub.BaseURL == "" {
		c.API.GitHub.BaseURL = DefaultGitHubBaseURL
	}

	if c.API.GitHub.CacheTTL == "" {
		c.API.GitHub.CacheTTL = DefaultGitHubCacheTTL
	}
}

// ValidateAPI checks the API section for errors.
func (c *Config) ValidateAPI() error {
	if c.API == nil {
		return fmt.Errorf("api section is required")
	}

	api := c.API

	if api.Server.Listen == "" {
		return fmt.Errorf("api.server.listen is required")
	}

	enabled := 0

	if api.Sources.Local != nil && api.Sources.Local.Enabled {
		enabled++

		if len(api.Sources.Local.DiscoveryPaths) == 0 {
			return fmt.Errorf(
				"api.sources.local.discovery_paths must not be empty")
		}
	}

	if api.Sources.HTTP != nil && api.Sources.HTTP.Enabled {
		enabled++

		if len(api.Sources.HTTP.DiscoveryPaths) == 0 {
			return fmt.Errorf(
				"api.sources.http.discovery_paths must not be empty")
		}
	}

	if api.Sources.S3 != nil && api.Sources.S3.Enabled {
		enabled++

		if api.Sources.S3.Bucket == "" {
			return fmt.Errorf("api.sources.s3.bucket is required")
		}
	}

	if enabled == 0 {
		return fmt.Errorf("at least one source backend must be enabled")
	}

	if enabled > 1 {
		return fmt.Errorf("only one source backend may be enabled")
	}

	if api.Auth.Basic.Enabled {
		for i, user := range api.Auth.Basic.Users {
			if user.Username == "" {
				return fmt.Errorf(
					"api.auth.basic.users[%d]: username is required", i)
			}

			if user.Password == "" {
				return fmt.Errorf(
					"api.auth.basic.users[%d]: password is required", i)
			}
		}
	}

	if api.Indexing != nil && api.Indexing.Enabled {
		if api.Indexing.Database.Driver == "" {
			return fmt.Errorf("api.indexing.database.driver is required")
		}
	}

	return nil
}
