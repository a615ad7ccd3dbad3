// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads bridge configuration from defaults, an optional YAML
// file and TERNBRIDGE_* environment variables, in that order of precedence.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/ternbridge/services/bridge/project"
	"github.com/AleutianAI/ternbridge/services/bridge/render"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

var validate = validator.New()

// Config is the complete bridge configuration.
type Config struct {
	Tern      TernConfig      `yaml:"tern"`
	Project   ProjectConfig   `yaml:"project"`
	Editor    EditorConfig    `yaml:"editor"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TernConfig controls the analysis server process.
type TernConfig struct {
	Command        string        `yaml:"command" validate:"required"`
	Args           []string      `yaml:"args"`
	StartupTimeout time.Duration `yaml:"startup_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	StopTimeout    time.Duration `yaml:"stop_timeout" validate:"gt=0"`
	RestartDelay   time.Duration `yaml:"restart_delay" validate:"gte=0"`
	ProjectFile    string        `yaml:"project_file" validate:"required"`

	// TemplatePath is a user project template; empty uses the built-in one.
	TemplatePath string `yaml:"template_path"`

	// WatchTemplate restarts a running server when the template changes.
	WatchTemplate bool `yaml:"watch_template"`

	SpawnInterval time.Duration `yaml:"spawn_interval" validate:"gt=0"`
	SpawnBurst    int           `yaml:"spawn_burst" validate:"gte=1"`
}

// ProjectConfig controls project directory resolution.
type ProjectConfig struct {
	// Dir pins the project directory. Empty resolves it per file.
	Dir string `yaml:"dir"`

	// Markers are root indicator files, most specific first.
	Markers []string `yaml:"markers" validate:"dive,required"`
}

// EditorConfig holds presentation settings.
type EditorConfig struct {
	// GotoTopOffset is how many lines stay visible above a jump target.
	GotoTopOffset int `yaml:"goto_top_offset" validate:"gte=0,lte=200"`

	// CalltipLookback is how many lines above the caret are scanned for the
	// enclosing call.
	CalltipLookback int `yaml:"calltip_lookback" validate:"gte=0,lte=500"`

	// CalltipDuration is how long a signature hint stays visible.
	CalltipDuration time.Duration `yaml:"calltip_duration" validate:"gt=0"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`

	// StatusAddr is where serve exposes /metrics and /healthz. Empty disables it.
	StatusAddr string `yaml:"status_addr" validate:"omitempty,hostname_port"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	session := tern.DefaultSessionConfig()
	return Config{
		Tern: TernConfig{
			Command:        session.Command,
			Args:           session.Args,
			StartupTimeout: session.StartupTimeout,
			RequestTimeout: session.RequestTimeout,
			StopTimeout:    session.StopTimeout,
			RestartDelay:   session.RestartDelay,
			ProjectFile:    session.ProjectFile,
			WatchTemplate:  true,
			SpawnInterval:  session.SpawnInterval,
			SpawnBurst:     session.SpawnBurst,
		},
		Project: ProjectConfig{
			Markers: project.DefaultMarkers(),
		},
		Editor: EditorConfig{
			GotoTopOffset:   render.DefaultTopLineOffset,
			CalltipLookback: 20,
			CalltipDuration: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
	}
}

// Validate checks every field against its validate tag.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// SessionConfig maps the tern section onto a session configuration.
func (c *Config) SessionConfig() tern.SessionConfig {
	return tern.SessionConfig{
		Command:        c.Tern.Command,
		Args:           c.Tern.Args,
		StartupTimeout: c.Tern.StartupTimeout,
		RequestTimeout: c.Tern.RequestTimeout,
		StopTimeout:    c.Tern.StopTimeout,
		RestartDelay:   c.Tern.RestartDelay,
		ProjectFile:    c.Tern.ProjectFile,
		TemplatePath:   c.Tern.TemplatePath,
		SpawnInterval:  c.Tern.SpawnInterval,
		SpawnBurst:     c.Tern.SpawnBurst,
	}
}

// Finder builds the project resolver for this configuration.
func (c *Config) Finder() project.Finder {
	return project.Finder{
		Override: c.Project.Dir,
		Markers:  c.Project.Markers,
	}
}
