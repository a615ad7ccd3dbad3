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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ternbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	session := cfg.SessionConfig()
	assert.Equal(t, tern.DefaultSessionConfig(), session)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "tern", cfg.Tern.Command)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
tern:
  command: /opt/tern/bin/tern
  request_timeout: 750ms
  template_path: /etc/ternbridge/project.json
project:
  dir: /work/app
editor:
  calltip_lookback: 5
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/tern/bin/tern", cfg.Tern.Command)
	assert.Equal(t, 750*time.Millisecond, cfg.Tern.RequestTimeout)
	assert.Equal(t, "/etc/ternbridge/project.json", cfg.Tern.TemplatePath)
	assert.Equal(t, "/work/app", cfg.Project.Dir)
	assert.Equal(t, 5, cfg.Editor.CalltipLookback)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, Defaults().Tern.StartupTimeout, cfg.Tern.StartupTimeout)
	assert.Equal(t, Defaults().Tern.Args, cfg.Tern.Args)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, "tern:\n  request_timeout: 750ms\nlogging:\n  level: debug\n")
	t.Setenv("TERNBRIDGE_REQUEST_TIMEOUT", "5s")
	t.Setenv("TERNBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("TERNBRIDGE_PROJECT_MARKERS", "package.json, .git")
	t.Setenv("TERNBRIDGE_WATCH_TEMPLATE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Tern.RequestTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"package.json", ".git"}, cfg.Project.Markers)
	assert.False(t, cfg.Tern.WatchTemplate)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("TERNBRIDGE_STARTUP_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TERNBRIDGE_STARTUP_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty command", "tern:\n  command: \"\"\n"},
		{"zero timeout", "tern:\n  request_timeout: 0s\n"},
		{"bad level", "logging:\n  level: verbose\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: zipkin\n"},
		{"bad status addr", "telemetry:\n  status_addr: nowhere\n"},
		{"zero burst", "tern:\n  spawn_burst: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeYAML(t, "tern: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config yaml")
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ternbridge.yaml")

	created, err := WriteDefault(path)
	require.NoError(t, err)
	assert.True(t, created)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)

	created, err = WriteDefault(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestConfig_Finder(t *testing.T) {
	cfg := Defaults()
	cfg.Project.Dir = "/work/app"

	finder := cfg.Finder()
	assert.Equal(t, "/work/app", finder.Override)
	assert.Equal(t, cfg.Project.Markers, finder.Markers)
}
