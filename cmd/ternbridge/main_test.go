// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ternbridge/pkg/ux"
	"github.com/AleutianAI/ternbridge/services/bridge/commands"
	"github.com/AleutianAI/ternbridge/services/bridge/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// pflag keeps values from earlier runs.
	configPath, logLevel, logFormat, logDir, projectDir, personalityLevel = "", "", "", "", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--output", "machine"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func newMachineHost(in string, interactive bool) (*terminalHost, *bytes.Buffer, *bytes.Buffer) {
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	var out, status bytes.Buffer
	return &terminalHost{
		Buffer:      &commands.Buffer{Name: "a.js"},
		out:         &ux.Printer{Out: &out, Err: &out},
		status:      &ux.Printer{Out: &status, Err: &status},
		in:          strings.NewReader(in),
		interactive: interactive,
	}, &out, &status
}

// =============================================================================
// TERMINAL HOST
// =============================================================================

func TestTerminalHost_JumpPrintsLocation(t *testing.T) {
	h, out, status := newMachineHost("", false)

	require.NoError(t, h.OpenFile("/p/lib/util.js"))
	h.SetTopLine(0)
	h.SetCaret(4, 2)
	h.Status("Goto file: /p/lib/util.js")

	assert.Equal(t, "/p/lib/util.js:3:5\n", out.String())
	assert.Equal(t, "Goto file: /p/lib/util.js\n", status.String())
}

func TestTerminalHost_ResultsGoToOut(t *testing.T) {
	h, out, status := newMachineHost("", false)

	h.ShowCompletions("|alpha|number|\tFirst.", 2, 0)
	h.Hint("add(a: number) -> void", time.Second)
	h.Alert("Adds two numbers.")

	assert.Equal(t, "alpha\tnumber\tFirst.\nadd(a: number) -> void\nAdds two numbers.\n", out.String())
	assert.Empty(t, status.String())
}

func TestTerminalHost_ChooseNonInteractiveListsAndCancels(t *testing.T) {
	h, out, _ := newMachineHost("1\n", false)

	idx, ok := h.Choose("Usages of add", []string{"a.js\t1", "b.js\t2"})

	assert.False(t, ok)
	assert.Equal(t, -1, idx)
	assert.Equal(t, "a.js\t1\nb.js\t2\n", out.String())
}

func TestTerminalHost_ChooseInteractive(t *testing.T) {
	h, _, _ := newMachineHost("2\n", true)

	idx, ok := h.Choose("Usages of add", []string{"a.js\t1", "b.js\t2"})

	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestTerminalHost_ProjectDir(t *testing.T) {
	h, _, _ := newMachineHost("", false)
	h.projectDir, h.hasProject = "/p", true

	dir, ok := h.ProjectDir()
	assert.True(t, ok)
	assert.Equal(t, "/p", dir)
}

// =============================================================================
// FLAGS AND MAPPING
// =============================================================================

func TestPositionFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "q"}
		addPositionFlags(cmd)
		require.NoError(t, cmd.ParseFlags(args))
		return cmd
	}

	pos, err := positionFlags(newCmd("--file", "a.js", "--line", "3", "--col", "7"))
	require.NoError(t, err)
	assert.Equal(t, position{file: "a.js", line: 3, col: 7}, pos)

	pos, err = positionFlags(newCmd("--file", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos.line)
	assert.Equal(t, 1, pos.col)

	_, err = positionFlags(newCmd("--file", "a.js", "--line", "0"))
	assert.Error(t, err)
}

func TestDispatcherOptions(t *testing.T) {
	c := config.Defaults()
	c.Editor.GotoTopOffset = 3
	c.Editor.CalltipLookback = 40
	c.Editor.CalltipDuration = 2 * time.Second

	assert.Equal(t, commands.Options{
		GotoTopOffset:   3,
		CalltipLookback: 40,
		CalltipDuration: 2 * time.Second,
	}, dispatcherOptions(&c))
}

func TestTelemetryConfig(t *testing.T) {
	c := config.Defaults()
	c.Telemetry.TraceExporter = "otlp"
	c.Telemetry.OTLPEndpoint = "collector:4317"

	tc := telemetryConfig(&c)
	assert.Equal(t, "otlp", tc.TraceExporter)
	assert.Equal(t, "prometheus", tc.MetricExporter)
	assert.Equal(t, "collector:4317", tc.OTLPEndpoint)
	assert.Equal(t, version, tc.ServiceVersion)
	assert.Equal(t, os.Stderr, tc.Output)
}

func TestWatchTemplate_DisabledWithoutTemplate(t *testing.T) {
	c := config.Defaults()

	events, stop, err := watchTemplate(context.Background(), &c)
	require.NoError(t, err)
	assert.Nil(t, events)
	stop()
}

func TestWatchTemplate_Watches(t *testing.T) {
	c := config.Defaults()
	c.Tern.TemplatePath = filepath.Join(t.TempDir(), "template.json")

	events, stop, err := watchTemplate(context.Background(), &c)
	require.NoError(t, err)
	defer stop()
	require.NotNil(t, events)

	require.NoError(t, os.WriteFile(c.Tern.TemplatePath, []byte(`{}`), 0o644))

	select {
	case change := <-events:
		assert.Equal(t, c.Tern.TemplatePath, change.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "version")
	require.NoError(t, err)
	assert.Equal(t, "ternbridge "+version+"\n", out)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ternbridge.yaml")

	out, err := execute(t, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	out, err = execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, "OK: Wrote "+path+"\n", out)
	assert.FileExists(t, path)

	_, err = execute(t, "--config", path, "config", "init")
	require.NoError(t, err)

	out, err = execute(t, "--config", path, "--log-level", "debug", "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")
	assert.Contains(t, out, "command: tern")
}

func TestRootRejectsBadLogLevel(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "loud", "version")
	assert.Error(t, err)
}
