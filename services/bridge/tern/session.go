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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// =============================================================================
// SESSION CONFIG
// =============================================================================

// SessionConfig configures how the analysis server is launched and queried.
type SessionConfig struct {
	// Command is the server executable name or path.
	Command string

	// Args enable persistent mode and disable stdin and the port file.
	Args []string

	// Env is appended to the bridge's own environment.
	Env []string

	// StartupTimeout bounds the wait for the port announcement.
	StartupTimeout time.Duration

	// RequestTimeout bounds every query, and is sent to the server in ms.
	RequestTimeout time.Duration

	// StopTimeout is how long a terminated server gets before it is killed.
	StopTimeout time.Duration

	// RestartDelay lets the OS release the old listening port.
	RestartDelay time.Duration

	// ProjectFile is the per-project config file name.
	ProjectFile string

	// TemplatePath is a user project template. Empty uses the built-in one.
	TemplatePath string

	// SpawnInterval and SpawnBurst limit automatic restarts after a failed start.
	SpawnInterval time.Duration
	SpawnBurst    int
}

// DefaultSessionConfig returns defaults matching a stock Tern install.
//
// Description:
//
//	Returns a configuration with:
//	  - Command: tern --persistent --ignore-stdin --no-port-file
//	  - StartupTimeout: 10 seconds
//	  - RequestTimeout: 3 seconds
//	  - StopTimeout: 2 seconds
//	  - RestartDelay: 500 milliseconds
//	  - one automatic respawn per 5 seconds after failures, burst 1
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Command:        "tern",
		Args:           []string{"--persistent", "--ignore-stdin", "--no-port-file"},
		StartupTimeout: 10 * time.Second,
		RequestTimeout: 3 * time.Second,
		StopTimeout:    2 * time.Second,
		RestartDelay:   500 * time.Millisecond,
		ProjectFile:    DefaultProjectFile,
		SpawnInterval:  5 * time.Second,
		SpawnBurst:     1,
	}
}

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of a Session.
type State int32

const (
	// StateStopped means no server process is owned by the session.
	StateStopped State = iota

	// StateStarting means a process was spawned and the handshake is pending.
	StateStarting

	// StateRunning means the server announced its port and accepts queries.
	StateRunning
)

// String returns a human-readable state name.
func (s State) String() string {
	names := []string{"stopped", "starting", "running"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// portPattern matches the server's one-line port announcement.
var portPattern = regexp.MustCompile(`^Listening on port (\d+)`)

// Notifier receives session failures that must be shown to the user.
type Notifier interface {
	NotifyError(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

// NotifyError calls f(err).
func (f NotifierFunc) NotifyError(err error) {
	f(err)
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	State      State     `json:"-"`
	StateName  string    `json:"state"`
	Port       int       `json:"port,omitempty"`
	Dir        string    `json:"dir,omitempty"`
	PID        int       `json:"pid,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Generation int       `json:"generation"`

	exited <-chan struct{}
}

// =============================================================================
// SESSION
// =============================================================================

// Session owns one analysis server process.
//
// Description:
//
//	Spawns the server against a project directory, performs the port
//	handshake, and sends queries to it. A query for a different project
//	directory, or one arriving after the process died, rebuilds the session
//	first. Query failures never tear the session down.
//
// Thread Safety:
//
//	Not safe for concurrent use; the host delivers commands serially.
//	Snapshot may be called from any goroutine.
type Session struct {
	config      SessionConfig
	provisioner Provisioner
	notifier    Notifier
	logger      *slog.Logger
	client      *http.Client
	limiter     *rate.Limiter

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	exited chan struct{}

	port      int
	dir       string
	id        string
	startedAt time.Time
	gen       int

	lastStartFailed bool

	state atomic.Int32
	snap  atomic.Pointer[Snapshot]
}

// Option customizes a Session.
type Option func(*Session)

// WithNotifier sets where spawn and handshake failures are reported.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a stopped session.
//
// Inputs:
//
//	config - Launch and timeout settings. Zero durations fall back to defaults.
//	opts - Optional notifier and logger.
//
// Outputs:
//
//	*Session - The session, in StateStopped.
func NewSession(config SessionConfig, opts ...Option) *Session {
	config = withDefaults(config)

	s := &Session{
		config: config,
		provisioner: Provisioner{
			FileName:     config.ProjectFile,
			TemplatePath: config.TemplatePath,
		},
		notifier: NotifierFunc(func(error) {}),
		logger:   slog.Default(),
		client:   newHTTPClient(config.RequestTimeout),
		limiter:  rate.NewLimiter(rate.Every(config.SpawnInterval), config.SpawnBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publish()
	return s
}

func withDefaults(c SessionConfig) SessionConfig {
	d := DefaultSessionConfig()
	if c.Command == "" {
		c.Command = d.Command
		if c.Args == nil {
			c.Args = d.Args
		}
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = d.StartupTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.RestartDelay < 0 {
		c.RestartDelay = d.RestartDelay
	}
	if c.ProjectFile == "" {
		c.ProjectFile = d.ProjectFile
	}
	if c.SpawnInterval <= 0 {
		c.SpawnInterval = d.SpawnInterval
	}
	if c.SpawnBurst <= 0 {
		c.SpawnBurst = d.SpawnBurst
	}
	return c
}

// Config returns the effective session configuration.
func (s *Session) Config() SessionConfig {
	return s.config
}

// Provisioner returns the project-file provisioner used on every start.
func (s *Session) Provisioner() Provisioner {
	return s.provisioner
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	if State(s.state.Load()) == StateRunning && !s.alive() {
		return StateStopped
	}
	return State(s.state.Load())
}

// Dir returns the project directory of the last start.
func (s *Session) Dir() string {
	return s.dir
}

// Port returns the negotiated port, or 0 when not running.
func (s *Session) Port() int {
	return s.port
}

// Snapshot returns the latest published view of the session.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (s *Session) Snapshot() Snapshot {
	snap := *s.snap.Load()
	if snap.State == StateRunning && snap.exited != nil {
		select {
		case <-snap.exited:
			snap.State = StateStopped
			snap.StateName = StateStopped.String()
		default:
		}
	}
	return snap
}

// Start launches the server against dir.
//
// Description:
//
//	Stops any owned process, writes the project config template into dir,
//	spawns the server with dir as its working directory, and reads exactly
//	one stdout line, which must announce the listening port. On failure the
//	notifier is told, the partial process is torn down and the session stays
//	stopped.
//
// Inputs:
//
//	ctx - Bounds the handshake together with StartupTimeout.
//	dir - The project directory, or "" for no project.
//
// Outputs:
//
//	error - ErrSpawnFailed or ErrHandshakeFailed wrapped with detail.
func (s *Session) Start(ctx context.Context, dir string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if s.cmd != nil {
		_ = s.Stop(ctx)
	}

	s.setState(StateStarting)
	s.dir = dir
	s.publish()

	err := s.spawn(ctx, dir)
	recordServerSpawn(ctx, err == nil)
	if err != nil {
		s.lastStartFailed = true
		s.teardown()
		s.logger.Error("Tern server failed to start",
			slog.String("dir", dir),
			slog.String("command", s.config.Command),
			slog.String("error", err.Error()),
		)
		s.notifier.NotifyError(err)
		return err
	}

	s.lastStartFailed = false
	s.setState(StateRunning)
	s.publish()

	s.logger.Info("Tern server started",
		slog.String("session_id", s.id),
		slog.Int("port", s.port),
		slog.Int("pid", s.cmd.Process.Pid),
		slog.String("dir", dir),
	)
	return nil
}

// spawn launches the process and performs the port handshake.
func (s *Session) spawn(ctx context.Context, dir string) error {
	if path, err := s.provisioner.Provision(dir); err != nil {
		s.logger.Warn("Could not provision project file",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	} else if path != "" {
		s.logger.Debug("Provisioned project file", slog.String("path", path))
	}

	bin, err := exec.LookPath(s.config.Command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, s.config.Command, err)
	}

	// The server outlives the caller's context, so no CommandContext here.
	cmd := exec.Command(bin, s.config.Args...)
	if isDir(dir) {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), s.config.Env...)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, s.config.Command, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.exited = make(chan struct{})

	lines := make(chan handshakeLine, 1)
	go reap(cmd, stdout, lines, s.exited)

	timer := time.NewTimer(s.config.StartupTimeout)
	defer timer.Stop()

	var first handshakeLine
	select {
	case first = <-lines:
	case <-timer.C:
		return fmt.Errorf("%w: no port announcement within %s", ErrHandshakeFailed, s.config.StartupTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, ctx.Err())
	}
	if first.err != nil && first.text == "" {
		return fmt.Errorf("%w: read stdout: %v", ErrHandshakeFailed, first.err)
	}

	port, err := parsePortLine(first.text)
	if err != nil {
		return err
	}

	s.port = port
	s.id = uuid.NewString()
	s.startedAt = time.Now()
	s.gen++
	return nil
}

// handshakeLine carries the first stdout line from the reaper.
type handshakeLine struct {
	text string
	err  error
}

// reap reads the handshake line, drains the rest of stdout so the server
// never blocks on a full pipe, and then waits for the process.
func reap(cmd *exec.Cmd, stdout io.Reader, lines chan<- handshakeLine, exited chan<- struct{}) {
	defer close(exited)

	reader := bufio.NewReader(stdout)
	text, err := reader.ReadString('\n')
	lines <- handshakeLine{text: strings.TrimRight(text, "\r\n"), err: err}

	_, _ = io.Copy(io.Discard, reader)
	_ = cmd.Wait()
}

// parsePortLine extracts the port from "Listening on port N".
func parsePortLine(line string) (int, error) {
	m := portPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, fmt.Errorf("%w: unexpected output %q", ErrHandshakeFailed, line)
	}
	port, err := strconv.Atoi(m[1])
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: invalid port %q", ErrHandshakeFailed, m[1])
	}
	return port, nil
}

// Stop terminates the server and clears the session.
//
// Description:
//
//	Closes the server's stdin, signals its process group, and kills it if it
//	has not exited within StopTimeout. Port and process handle are cleared
//	unconditionally. Calling Stop on a stopped session is a no-op.
//
// Outputs:
//
//	error - Always nil; termination problems are logged.
func (s *Session) Stop(ctx context.Context) error {
	if s.cmd == nil {
		s.clear()
		return nil
	}

	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	s.logger.Info("Stopping tern server",
		slog.String("session_id", s.id),
		slog.Int("pid", pid),
	)

	s.teardownWith(ctx)
	return nil
}

// teardown stops a process without a caller context.
func (s *Session) teardown() {
	s.teardownWith(context.Background())
}

func (s *Session) teardownWith(ctx context.Context) {
	defer s.clear()

	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}

	if err := terminateProcess(s.cmd.Process); err != nil {
		s.logger.Debug("Terminate failed", slog.String("error", err.Error()))
	}
	if s.waitExit(ctx, s.config.StopTimeout) {
		return
	}

	s.logger.Warn("Tern server did not exit, killing", slog.Int("pid", s.cmd.Process.Pid))
	_ = killProcess(s.cmd.Process)
	if !s.waitExit(context.Background(), s.config.StopTimeout) {
		s.logger.Error("Tern server did not exit after kill", slog.Int("pid", s.cmd.Process.Pid))
	}
}

// waitExit waits for the reaper to observe process exit.
func (s *Session) waitExit(ctx context.Context, timeout time.Duration) bool {
	if s.exited == nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.exited:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// clear forgets the process and port.
func (s *Session) clear() {
	s.cmd = nil
	s.stdin = nil
	s.exited = nil
	s.port = 0
	s.id = ""
	s.setState(StateStopped)
	s.publish()
}

// Restart stops the server, waits RestartDelay, and starts it again against
// the same project directory.
func (s *Session) Restart(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	dir := s.dir
	_ = s.Stop(ctx)

	if s.config.RestartDelay > 0 {
		timer := time.NewTimer(s.config.RestartDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return s.Start(ctx, dir)
}

// Request sends one query payload and returns the raw JSON answer.
//
// Description:
//
//	Rebuilds the session first when dir differs from the session's project
//	directory or the server is not running. After a failed start, further
//	automatic starts are rate limited. Timeouts and connection failures
//	affect only this call; the process and port are left as they were.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	dir - The caller's project directory, or "" for no project.
//	payload - A JSON-encodable request, normally a Request.
//
// Outputs:
//
//	json.RawMessage - The server's answer.
//	error - Any error means "no result"; see IsNoResult.
func (s *Session) Request(ctx context.Context, dir string, payload interface{}) (json.RawMessage, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	if dir != s.dir || !s.alive() {
		if s.lastStartFailed && !s.limiter.Allow() {
			return nil, ErrSpawnThrottled
		}
		if dir != s.dir && s.cmd != nil {
			s.logger.Info("Project directory changed, restarting tern",
				slog.String("from", s.dir),
				slog.String("to", dir),
			)
		}
		if err := s.Start(ctx, dir); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotRunning, err)
		}
	}

	if !s.alive() {
		return nil, ErrNotRunning
	}
	return post(ctx, s.client, s.port, payload, s.config.RequestTimeout)
}

// alive reports whether an owned process has announced a port and not exited.
func (s *Session) alive() bool {
	if s.cmd == nil || s.port == 0 || s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// publish stores a fresh snapshot for other goroutines.
func (s *Session) publish() {
	snap := &Snapshot{
		State:      State(s.state.Load()),
		Port:       s.port,
		Dir:        s.dir,
		SessionID:  s.id,
		StartedAt:  s.startedAt,
		Generation: s.gen,
		exited:     s.exited,
	}
	snap.StateName = snap.State.String()
	if s.cmd != nil && s.cmd.Process != nil {
		snap.PID = s.cmd.Process.Pid
	}
	s.snap.Store(snap)
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
