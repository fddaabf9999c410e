// Package config provides host configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Transports.
const (
	TransportComms    = "comms"
	TransportLoopback = "loopback"
)

// Preference stores.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds fde-host configuration.
type Config struct {
	// COMMS: the engine is reached over NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"fde-host"`

	// Transport is "comms" (NATS bridge) or "loopback" (in-process engine for local runs).
	Transport     string `envconfig:"FDE_TRANSPORT" default:"comms"`
	SubjectPrefix string `envconfig:"FDE_SUBJECT_PREFIX" default:"fde"`
	// MethodCodec is the default codec for plugin channels: "json" or "cbor".
	MethodCodec string `envconfig:"FDE_CODEC" default:"json"`
	// InputBlockingChannels are marked input-blocking after plugins register.
	InputBlockingChannels []string `envconfig:"FDE_INPUT_BLOCKING_CHANNELS"`
	PluginAPIConstraint   string   `envconfig:"FDE_PLUGIN_API_CONSTRAINT" default:"^1.0.0"`
	// RequestTimeout bounds each plugin's storage call.
	RequestTimeout time.Duration `envconfig:"FDE_REQUEST_TIMEOUT" default:"5s"`

	// Preferences
	PreferencesStore string `envconfig:"PREFERENCES_STORE" default:"memory"`

	// Database (PREFERENCES_STORE=postgres and migrate)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running the host.
func (c *Config) ValidateForServe() error {
	switch c.Transport {
	case TransportComms, TransportLoopback:
	default:
		return fmt.Errorf("%s - FDE_TRANSPORT must be %q or %q, got %q", logPrefix, TransportComms, TransportLoopback, c.Transport)
	}
	if c.SubjectPrefix == "" {
		return fmt.Errorf("%s - FDE_SUBJECT_PREFIX must not be empty", logPrefix)
	}
	switch c.MethodCodec {
	case "json", "cbor":
	default:
		return fmt.Errorf("%s - FDE_CODEC must be json or cbor, got %q", logPrefix, c.MethodCodec)
	}
	switch c.PreferencesStore {
	case StoreMemory:
	case StorePostgres:
		if err := c.ValidateForDB(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s - PREFERENCES_STORE must be %q or %q, got %q", logPrefix, StoreMemory, StorePostgres, c.PreferencesStore)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - FDE_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
