// Package config handles application configuration loading and validation.
//
// Configuration is loaded from a YAML file and validated using struct
// tags. Every field has a workable default, so a missing file is not
// an error.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// Set by the managed deployment platform; selects the
	// persistent volume for the sqlite database.
	managedEnvVar = "RAILWAY_ENVIRONMENT"

	managedDBPath = "/app/data/bart.db"
	localDBPath   = "data/bart.db"
	fallbackDB    = "bart.db"

	DefaultPort = 5000
)

// ServerConfig contains server configuration.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0"`
}

// UpstreamConfig contains the transit feed configuration. Empty
// fields fall back to the bart package defaults.
type UpstreamConfig struct {
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	Key       string `yaml:"key"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// Timeout returns the configured upstream timeout, or 0 when unset.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

// StorageConfig selects and configures the observation store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres memory"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Storage  StorageConfig  `yaml:"storage"`

	// Whether live departure fetches write through to the store.
	// Nil means true.
	PersistDepartures *bool `yaml:"persist_departures"`
}

// Load reads and validates the configuration at path. A missing file
// yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}

	return cfg, nil
}

// Persist reports whether write-through persistence is enabled.
func (c *AppConfig) Persist() bool {
	return c.PersistDepartures == nil || *c.PersistDepartures
}

// SQLitePath resolves the database file location. An explicit
// configured path wins. Otherwise managed deployments get the
// persistent volume, local runs a relative data directory, and if the
// directory cannot be created the bare filename in the working
// directory is used.
func (c *AppConfig) SQLitePath() string {
	path := c.Storage.Path
	if path == "" {
		if os.Getenv(managedEnvVar) != "" {
			path = managedDBPath
		} else {
			path = localDBPath
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fallbackDB
	}
	return path
}
