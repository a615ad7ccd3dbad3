// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tern

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ternbridge/services/bridge/caret"
)

// fakeReply is the bookkeeping the fake server adds to every answer.
type fakeReply struct {
	Cwd         string `json:"cwd"`
	ProjectFile bool   `json:"projectFile"`
	Timeout     int64  `json:"timeout"`
	PID         int    `json:"pid"`
}

func newTestSession(t *testing.T, mode string, mutate func(*SessionConfig)) (*Session, *atomic.Int32) {
	t.Helper()
	cfg := fakeConfig(t, mode)
	if mutate != nil {
		mutate(&cfg)
	}

	var notified atomic.Int32
	s := NewSession(cfg, WithNotifier(NotifierFunc(func(error) {
		notified.Add(1)
	})))
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})
	return s, &notified
}

func queryFile(t *testing.T, s *Session, dir, file string) (fakeReply, error) {
	t.Helper()
	c := caret.Normalize(3, 0, caret.NoSelection, caret.NoSelection)
	req := NewTypeRequest(Document{Filename: file, Text: "foo"}, c, s.Config().RequestTimeout)

	raw, err := s.Request(context.Background(), dir, req)
	if err != nil {
		return fakeReply{}, err
	}
	var reply fakeReply
	require.NoError(t, json.Unmarshal(raw, &reply))
	return reply, nil
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
}

func TestParsePortLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    int
		wantErr bool
	}{
		{name: "announcement", line: "Listening on port 35129", want: 35129},
		{name: "trailing whitespace", line: "Listening on port 8080 \r", want: 8080},
		{name: "garbage", line: "Error: Cannot find module 'acorn'", wantErr: true},
		{name: "empty", line: "", wantErr: true},
		{name: "zero port", line: "Listening on port 0", wantErr: true},
		{name: "out of range", line: "Listening on port 70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePortLine(tt.line)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrHandshakeFailed))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()

	assert.Equal(t, "tern", cfg.Command)
	assert.Equal(t, []string{"--persistent", "--ignore-stdin", "--no-port-file"}, cfg.Args)
	assert.Equal(t, DefaultProjectFile, cfg.ProjectFile)
	assert.Greater(t, cfg.StartupTimeout, time.Duration(0))
	assert.Greater(t, cfg.RequestTimeout, time.Duration(0))
}

func TestWithDefaults_FillsZeroValues(t *testing.T) {
	cfg := withDefaults(SessionConfig{Command: "/opt/tern/bin/tern"})

	assert.Equal(t, "/opt/tern/bin/tern", cfg.Command)
	assert.Nil(t, cfg.Args, "custom commands keep their own arguments")
	assert.Equal(t, DefaultSessionConfig().RequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultSessionConfig().SpawnBurst, cfg.SpawnBurst)
}

func TestSession_StartAndStop(t *testing.T) {
	s, notified := newTestSession(t, "serve", nil)
	dir := t.TempDir()

	assert.Equal(t, StateStopped, s.State())

	require.NoError(t, s.Start(context.Background(), dir))
	assert.Equal(t, StateRunning, s.State())
	assert.Greater(t, s.Port(), 0)
	assert.Equal(t, dir, s.Dir())

	snap := s.Snapshot()
	assert.Equal(t, "running", snap.StateName)
	assert.NotEmpty(t, snap.SessionID)
	assert.Greater(t, snap.PID, 0)
	assert.Equal(t, 1, snap.Generation)

	data, err := os.ReadFile(filepath.Join(dir, DefaultProjectFile))
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate(), data)

	exited := s.exited
	require.NoError(t, s.Stop(context.Background()))
	waitClosed(t, exited)

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 0, s.Port())
	assert.Equal(t, "stopped", s.Snapshot().StateName)

	require.NoError(t, s.Stop(context.Background()), "stopping twice is a no-op")
	assert.Equal(t, int32(0), notified.Load())
}

func TestSession_SpawnFailure(t *testing.T) {
	s, notified := newTestSession(t, "serve", func(c *SessionConfig) {
		c.Command = filepath.Join(t.TempDir(), "no-such-tern")
	})

	err := s.Start(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawnFailed))
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 0, s.Port())
	assert.Equal(t, int32(1), notified.Load())
}

func TestSession_HandshakeGarbage(t *testing.T) {
	s, notified := newTestSession(t, "garbage", nil)

	err := s.Start(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeFailed))
	assert.Contains(t, err.Error(), "Cannot find module")
	assert.Equal(t, StateStopped, s.State())
	assert.Nil(t, s.cmd, "partial process must be torn down")
	assert.Equal(t, int32(1), notified.Load())
}

func TestSession_HandshakeTimeout(t *testing.T) {
	s, notified := newTestSession(t, "silent", func(c *SessionConfig) {
		c.StartupTimeout = 300 * time.Millisecond
	})

	start := time.Now()
	err := s.Start(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandshakeFailed))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, int32(1), notified.Load())
}

func TestSession_RequestStartsLazily(t *testing.T) {
	s, _ := newTestSession(t, "serve", nil)
	dir := t.TempDir()

	reply, err := queryFile(t, s, dir, "app.js")
	require.NoError(t, err)

	assert.Equal(t, realDir(t, dir), reply.Cwd)
	assert.True(t, reply.ProjectFile, "project file must exist before the first query")
	assert.Equal(t, s.Config().RequestTimeout.Milliseconds(), reply.Timeout)
	assert.Equal(t, s.Snapshot().PID, reply.PID)
	assert.Equal(t, 1, s.Snapshot().Generation)
}

func TestSession_ProjectSwitchRestarts(t *testing.T) {
	s, _ := newTestSession(t, "serve", nil)
	dirA := t.TempDir()
	dirB := t.TempDir()

	first, err := queryFile(t, s, dirA, "a.js")
	require.NoError(t, err)
	oldExited := s.exited

	second, err := queryFile(t, s, dirB, "b.js")
	require.NoError(t, err)

	waitClosed(t, oldExited)
	assert.Equal(t, realDir(t, dirB), second.Cwd)
	assert.True(t, second.ProjectFile)
	assert.NotEqual(t, first.PID, second.PID)
	assert.Equal(t, dirB, s.Dir())
	assert.Equal(t, 2, s.Snapshot().Generation)

	_, err = os.Stat(filepath.Join(dirB, DefaultProjectFile))
	assert.NoError(t, err)
}

func TestSession_SameProjectReusesServer(t *testing.T) {
	s, _ := newTestSession(t, "serve", nil)
	dir := t.TempDir()

	first, err := queryFile(t, s, dir, "a.js")
	require.NoError(t, err)
	second, err := queryFile(t, s, dir, "b.js")
	require.NoError(t, err)

	assert.Equal(t, first.PID, second.PID)
	assert.Equal(t, 1, s.Snapshot().Generation)
}

func TestSession_TimeoutDoesNotTearDown(t *testing.T) {
	s, notified := newTestSession(t, "serve", func(c *SessionConfig) {
		c.RequestTimeout = 300 * time.Millisecond
	})
	dir := t.TempDir()

	require.NoError(t, s.Start(context.Background(), dir))
	port := s.Port()
	pid := s.Snapshot().PID

	_, err := queryFile(t, s, dir, "slow.js")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestTimeout), "got %v", err)
	assert.True(t, IsNoResult(err))

	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, port, s.Port())
	assert.Equal(t, pid, s.Snapshot().PID)

	reply, err := queryFile(t, s, dir, "app.js")
	require.NoError(t, err)
	assert.Equal(t, pid, reply.PID)
	assert.Equal(t, int32(0), notified.Load())
}

func TestSession_ServerErrorIsNoResult(t *testing.T) {
	s, _ := newTestSession(t, "serve", nil)
	dir := t.TempDir()

	_, err := queryFile(t, s, dir, "fail.js")
	require.Error(t, err)

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, 400, serverErr.Status)
	assert.Equal(t, StateRunning, s.State())
}

func TestSession_RespawnsDeadServer(t *testing.T) {
	s, _ := newTestSession(t, "serve", nil)
	dir := t.TempDir()

	require.NoError(t, s.Start(context.Background(), dir))
	exited := s.exited
	require.NoError(t, s.cmd.Process.Kill())
	waitClosed(t, exited)

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, StateStopped, s.Snapshot().State)

	_, err := queryFile(t, s, dir, "app.js")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 2, s.Snapshot().Generation)
}

func TestSession_FailedStartsAreThrottled(t *testing.T) {
	s, notified := newTestSession(t, "serve", func(c *SessionConfig) {
		c.Command = filepath.Join(t.TempDir(), "no-such-tern")
		c.SpawnInterval = time.Minute
		c.SpawnBurst = 1
	})
	dir := t.TempDir()

	_, err := queryFile(t, s, dir, "a.js")
	assert.True(t, errors.Is(err, ErrNotRunning))
	assert.True(t, errors.Is(err, ErrSpawnFailed))

	// The first retry is allowed by the burst.
	_, err = queryFile(t, s, dir, "a.js")
	assert.True(t, errors.Is(err, ErrSpawnFailed))

	_, err = queryFile(t, s, dir, "a.js")
	assert.True(t, errors.Is(err, ErrSpawnThrottled))

	assert.Equal(t, int32(2), notified.Load())
}

func TestSession_Restart(t *testing.T) {
	s, _ := newTestSession(t, "serve", nil)
	dir := t.TempDir()

	require.NoError(t, s.Start(context.Background(), dir))
	before := s.Snapshot()

	require.NoError(t, s.Restart(context.Background()))
	after := s.Snapshot()

	assert.Equal(t, StateRunning, after.State)
	assert.Equal(t, dir, after.Dir)
	assert.NotEqual(t, before.PID, after.PID)
	assert.NotEqual(t, before.SessionID, after.SessionID)
	assert.Equal(t, before.Generation+1, after.Generation)
}

func TestSession_RestartHonorsContext(t *testing.T) {
	s, _ := newTestSession(t, "serve", func(c *SessionConfig) {
		c.RestartDelay = time.Minute
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Restart(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateStopped, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "unknown", State(9).String())
}
