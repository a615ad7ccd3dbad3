// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TERNBRIDGE_"

// DefaultPath returns ~/.ternbridge/ternbridge.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".ternbridge", "ternbridge.yaml"), nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
//
// The YAML file is optional; a missing file is not an error. An empty path
// skips the file entirely. The merged result is validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, path); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty values override; malformed numbers and durations are errors.
func loadEnv(cfg *Config) error {
	setString(&cfg.Tern.Command, "TERN_COMMAND")
	setList(&cfg.Tern.Args, "TERN_ARGS")
	setString(&cfg.Tern.ProjectFile, "PROJECT_FILE")
	setString(&cfg.Tern.TemplatePath, "TEMPLATE")
	setString(&cfg.Project.Dir, "PROJECT_DIR")
	setList(&cfg.Project.Markers, "PROJECT_MARKERS")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Telemetry.TraceExporter, "TRACE_EXPORTER")
	setString(&cfg.Telemetry.MetricExporter, "METRIC_EXPORTER")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTLP_ENDPOINT")
	setString(&cfg.Telemetry.StatusAddr, "STATUS_ADDR")

	return errors.Join(
		setDuration(&cfg.Tern.StartupTimeout, "STARTUP_TIMEOUT"),
		setDuration(&cfg.Tern.RequestTimeout, "REQUEST_TIMEOUT"),
		setDuration(&cfg.Tern.StopTimeout, "STOP_TIMEOUT"),
		setDuration(&cfg.Tern.RestartDelay, "RESTART_DELAY"),
		setDuration(&cfg.Tern.SpawnInterval, "SPAWN_INTERVAL"),
		setInt(&cfg.Tern.SpawnBurst, "SPAWN_BURST"),
		setBool(&cfg.Tern.WatchTemplate, "WATCH_TEMPLATE"),
		setInt(&cfg.Editor.GotoTopOffset, "GOTO_TOP_OFFSET"),
		setInt(&cfg.Editor.CalltipLookback, "CALLTIP_LOOKBACK"),
		setDuration(&cfg.Editor.CalltipDuration, "CALLTIP_DURATION"),
		setBool(&cfg.Telemetry.OTLPInsecure, "OTLP_INSECURE"),
	)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left alone and reported as false.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaults := Defaults()
	data, err := Marshal(&defaults)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	return v, v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// setList splits a comma separated value.
func setList(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}
