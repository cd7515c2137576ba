// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the focusd configuration.
//
// # Description
//
// Values are layered: Default(), then the YAML file (if any), then
// environment overrides. The result is validated before use.
//
//	FOCUS_PORT                  server.port
//	FOCUS_DATA_DIR              storage.data_dir
//	FOCUS_LOG_LEVEL             logging.level
//	OTEL_EXPORTER_OTLP_ENDPOINT telemetry.otlp_endpoint
//	INFLUXDB_URL                influx.url
//	INFLUXDB_TOKEN              influx.token
//	INFLUXDB_ORG                influx.org
//	INFLUXDB_BUCKET             influx.bucket
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianFocus/services/focus/datatypes"
	"github.com/AleutianAI/AleutianFocus/services/focus/state"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete focusd configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Pomodoro  PomodoroConfig  `yaml:"pomodoro"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Influx    InfluxConfig    `yaml:"influx"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	GinMode         string        `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// StorageConfig locates the BadgerDB directory. An empty DataDir runs fully
// in memory.
type StorageConfig struct {
	DataDir          string        `yaml:"data_dir"`
	SyncWrites       bool          `yaml:"sync_writes"`
	GCInterval       time.Duration `yaml:"gc_interval" validate:"gte=0"`
	ActiveSessionTTL time.Duration `yaml:"active_session_ttl" validate:"gt=0"`
	PomodoroTTL      time.Duration `yaml:"pomodoro_ttl" validate:"gt=0"`
	StateTTL         time.Duration `yaml:"state_ttl" validate:"gt=0"`
}

type SessionConfig struct {
	TickInterval       time.Duration               `yaml:"tick_interval" validate:"gt=0"`
	ForceResumeMinutes int                         `yaml:"force_resume_minutes" validate:"min=1,max=240"`
	UpstreamTimeout    time.Duration               `yaml:"upstream_timeout" validate:"gt=0"`
	EmitTimeout        time.Duration               `yaml:"emit_timeout" validate:"gt=0"`
	DefaultState       datatypes.ProductivityState `yaml:"default_state"`
}

type PomodoroConfig struct {
	Work           time.Duration `yaml:"work" validate:"gt=0"`
	ShortBreak     time.Duration `yaml:"short_break" validate:"gt=0"`
	LongBreak      time.Duration `yaml:"long_break" validate:"gt=0"`
	LongBreakEvery int           `yaml:"long_break_every" validate:"min=1"`
	TickInterval   time.Duration `yaml:"tick_interval" validate:"gt=0"`
}

// RateLimitConfig bounds requests per user. Zero RequestsPerSecond disables
// limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// TelemetryConfig controls tracing and metrics. An empty OTLPEndpoint
// disables span export.
type TelemetryConfig struct {
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name" validate:"required"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// InfluxConfig enables the analytics sink when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token" validate:"required_with=URL"`
	Org    string `yaml:"org" validate:"required_with=URL"`
	Bucket string `yaml:"bucket" validate:"required_with=URL"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir receives a daily log file when set.
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            12230,
			GinMode:         "release",
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			SyncWrites:       true,
			GCInterval:       5 * time.Minute,
			ActiveSessionTTL: time.Hour,
			PomodoroTTL:      2 * time.Hour,
			StateTTL:         12 * time.Hour,
		},
		Session: SessionConfig{
			TickInterval:       time.Minute,
			ForceResumeMinutes: 15,
			UpstreamTimeout:    3 * time.Second,
			EmitTimeout:        2 * time.Second,
			DefaultState:       state.DefaultState,
		},
		Pomodoro: PomodoroConfig{
			Work:           25 * time.Minute,
			ShortBreak:     5 * time.Minute,
			LongBreak:      15 * time.Minute,
			LongBreakEvery: 4,
			TickInterval:   time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "focus-service",
			MetricsEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (optional), applies environment overrides and validates.
//
// # Inputs
//
//   - path: YAML file. Empty means defaults plus environment only.
//
// # Outputs
//
//   - Config: The effective configuration.
//   - error: Non-nil if the file cannot be read or parsed, an environment
//     value is malformed, or validation fails.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("FOCUS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FOCUS_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	strings := []struct {
		key string
		dst *string
	}{
		{"FOCUS_DATA_DIR", &cfg.Storage.DataDir},
		{"FOCUS_LOG_LEVEL", &cfg.Logging.Level},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint},
		{"INFLUXDB_URL", &cfg.Influx.URL},
		{"INFLUXDB_TOKEN", &cfg.Influx.Token},
		{"INFLUXDB_ORG", &cfg.Influx.Org},
		{"INFLUXDB_BUCKET", &cfg.Influx.Bucket},
	}
	for _, s := range strings {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
	return nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := datatypes.Validator().Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid configuration: %w", invalid)
		}
		return err
	}
	return nil
}

// YAML renders the configuration for `focusd config print`. The Influx
// token is masked.
func (c Config) YAML() ([]byte, error) {
	if c.Influx.Token != "" {
		c.Influx.Token = "********"
	}
	return yaml.Marshal(c)
}
