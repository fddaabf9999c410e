package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME",
	"FDE_TRANSPORT", "FDE_SUBJECT_PREFIX", "FDE_CODEC", "FDE_INPUT_BLOCKING_CHANNELS",
	"FDE_PLUGIN_API_CONSTRAINT", "FDE_REQUEST_TIMEOUT", "PREFERENCES_STORE",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "fde-host" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "fde-host")
	}
	if cfg.Transport != TransportComms {
		t.Errorf("config:config_test - Transport = %q, want %q", cfg.Transport, TransportComms)
	}
	if cfg.SubjectPrefix != "fde" {
		t.Errorf("config:config_test - SubjectPrefix = %q, want %q", cfg.SubjectPrefix, "fde")
	}
	if cfg.MethodCodec != "json" {
		t.Errorf("config:config_test - MethodCodec = %q, want %q", cfg.MethodCodec, "json")
	}
	if len(cfg.InputBlockingChannels) != 0 {
		t.Errorf("config:config_test - InputBlockingChannels = %v, want empty", cfg.InputBlockingChannels)
	}
	if cfg.PluginAPIConstraint != "^1.0.0" {
		t.Errorf("config:config_test - PluginAPIConstraint = %q, want %q", cfg.PluginAPIConstraint, "^1.0.0")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.PreferencesStore != StoreMemory {
		t.Errorf("config:config_test - PreferencesStore = %q, want %q", cfg.PreferencesStore, StoreMemory)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":                   "nats://custom:4222",
		"SERVICE_NAME":                "test-host",
		"FDE_TRANSPORT":               "loopback",
		"FDE_SUBJECT_PREFIX":          "desk1",
		"FDE_CODEC":                   "cbor",
		"FDE_INPUT_BLOCKING_CHANNELS": "flutter/modal,plugins.example/file_chooser",
		"FDE_PLUGIN_API_CONSTRAINT":   ">=1.0.0, <3.0.0",
		"FDE_REQUEST_TIMEOUT":         "2s",
		"PREFERENCES_STORE":           "postgres",
		"DATABASE_URL":                "postgres://test@localhost/test",
		"RUN_MIGRATIONS":              "true",
		"MIGRATION_PATH":              "/tmp/migrations",
		"HTTP_PORT":                   "9090",
		"HEALTH_CHECK_TIMEOUT":        "10s",
		"LOG_LEVEL":                   "debug",
	}

	for key, val := range overrides {
		os.Setenv(key, val)
	}
	defer clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://custom:4222")
	}
	if cfg.COMMSName != "test-host" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "test-host")
	}
	if cfg.Transport != TransportLoopback {
		t.Errorf("config:config_test - Transport = %q, want %q", cfg.Transport, TransportLoopback)
	}
	if cfg.SubjectPrefix != "desk1" {
		t.Errorf("config:config_test - SubjectPrefix = %q, want %q", cfg.SubjectPrefix, "desk1")
	}
	if cfg.MethodCodec != "cbor" {
		t.Errorf("config:config_test - MethodCodec = %q, want %q", cfg.MethodCodec, "cbor")
	}
	if got := strings.Join(cfg.InputBlockingChannels, "|"); got != "flutter/modal|plugins.example/file_chooser" {
		t.Errorf("config:config_test - InputBlockingChannels = %v", cfg.InputBlockingChannels)
	}
	if cfg.PluginAPIConstraint != ">=1.0.0, <3.0.0" {
		t.Errorf("config:config_test - PluginAPIConstraint = %q", cfg.PluginAPIConstraint)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
	if cfg.PreferencesStore != StorePostgres {
		t.Errorf("config:config_test - PreferencesStore = %q, want %q", cfg.PreferencesStore, StorePostgres)
	}
	if cfg.DatabaseURL != "postgres://test@localhost/test" {
		t.Errorf("config:config_test - DatabaseURL = %q, unexpected", cfg.DatabaseURL)
	}
	if !cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=true")
	}
	if cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "/tmp/migrations")
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("config:config_test - HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 10s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - overrides should validate: %v", err)
	}
}

func TestLoadConfig_LogLevels(t *testing.T) {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		os.Setenv("LOG_LEVEL", level)
		cfg, err := LoadConfig()
		os.Unsetenv("LOG_LEVEL")

		if err != nil {
			t.Fatalf("config:config_test - unexpected error for level %q: %v", level, err)
		}
		if cfg.LogLevel != level {
			t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, level)
		}
	}
}

func validConfig() Config {
	return Config{
		Transport:          TransportComms,
		SubjectPrefix:      "fde",
		MethodCodec:        "json",
		PreferencesStore:   StoreMemory,
		RequestTimeout:     time.Second,
		HealthCheckTimeout: time.Second,
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "websocket" }, wantErr: "FDE_TRANSPORT"},
		{name: "empty prefix", mutate: func(c *Config) { c.SubjectPrefix = "" }, wantErr: "FDE_SUBJECT_PREFIX"},
		{name: "unknown codec", mutate: func(c *Config) { c.MethodCodec = "xml" }, wantErr: "FDE_CODEC"},
		{name: "unknown store", mutate: func(c *Config) { c.PreferencesStore = "redis" }, wantErr: "PREFERENCES_STORE"},
		{name: "postgres without url", mutate: func(c *Config) { c.PreferencesStore = StorePostgres }, wantErr: "DATABASE_URL"},
		{name: "postgres with url", mutate: func(c *Config) {
			c.PreferencesStore = StorePostgres
			c.DatabaseURL = "postgres://localhost/fde"
		}},
		{name: "zero request timeout", mutate: func(c *Config) { c.RequestTimeout = 0 }, wantErr: "FDE_REQUEST_TIMEOUT"},
		{name: "zero health timeout", mutate: func(c *Config) { c.HealthCheckTimeout = 0 }, wantErr: "HEALTH_CHECK_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.ValidateForServe()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("config:config_test - unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("config:config_test - error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
