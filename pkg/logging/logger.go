// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging builds the process slog logger for ternbridge.
//
// Records go to a primary writer (stderr unless configured) and, when a log
// directory is set, to a daily JSON file as well. Stdout is never a default:
// it is the editor protocol channel when the bridge runs as a stdio host.
//
//	┌──────────────────────────────────────────────┐
//	│                    Logger                    │
//	│  ┌─────────────┐  ┌────────────────────────┐ │
//	│  │   stderr    │  │  {service}_{date}.log  │ │
//	│  │ text / json │  │  json, optional        │ │
//	│  └─────────────┘  └────────────────────────┘ │
//	└──────────────────────────────────────────────┘
//
// Records logged with a context that carries an OpenTelemetry span get
// trace_id and span_id attributes, so a failed query's log line can be found
// next to its trace.
//
// # Basic Usage
//
//	level, _ := logging.ParseLevel("debug")
//	logger := logging.New(logging.Config{Level: level, Service: "ternbridge"})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// # Thread Safety
//
// Logger is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// defaultService names the log file when Config.Service is empty.
const defaultService = "ternbridge"

// ParseLevel converts a configured level name to a slog level. Matching is
// case-insensitive, "warning" is accepted for warn and "" means info.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		name = "warn"
	}
	var level slog.Level
	switch name {
	case "debug", "info", "warn", "error":
		if err := level.UnmarshalText([]byte(name)); err != nil {
			return slog.LevelInfo, err
		}
		return level, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Config configures a Logger. The zero value writes info and above as text
// to stderr.
type Config struct {
	// Level is the minimum level logged.
	Level slog.Level

	// LogDir adds a JSON file "{Service}_{YYYY-MM-DD}.log" in this
	// directory. A leading ~ is the home directory.
	LogDir string

	// Service is attached to every record.
	Service string

	// JSON switches the primary writer from text to JSON.
	JSON bool

	// Quiet drops the primary writer when a log file is open.
	Quiet bool

	// Output is the primary writer. Nil means stderr.
	Output io.Writer
}

func (c Config) output() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stderr
}

// Logger is a slog logger plus the log file it may own.
type Logger struct {
	slog *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger from config.
//
// A log directory that cannot be created or opened is skipped and the
// primary writer is used alone. Quiet with no usable file still logs to the
// primary writer so records are never silently lost.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level}
	l := &Logger{}

	var sinks fanout
	if f, err := openLogFile(config); err == nil && f != nil {
		l.file = f
		sinks = append(sinks, slog.NewJSONHandler(f, opts))
	}
	if !config.Quiet || len(sinks) == 0 {
		sinks = append(sinks, primaryHandler(config, opts))
	}

	var h slog.Handler = sinks
	if len(sinks) == 1 {
		h = sinks[0]
	}
	h = traceHandler{next: h}
	if config.Service != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	l.slog = slog.New(h)
	return l
}

func primaryHandler(config Config, opts *slog.HandlerOptions) slog.Handler {
	if config.JSON {
		return slog.NewJSONHandler(config.output(), opts)
	}
	return slog.NewTextHandler(config.output(), opts)
}

// openLogFile opens today's log file in config.LogDir for appending. It
// returns nil, nil when no directory is configured.
func openLogFile(config Config) (*os.File, error) {
	if config.LogDir == "" {
		return nil, nil
	}
	dir := expandHome(config.LogDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, logFileName(config.Service, time.Now())),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

func logFileName(service string, day time.Time) string {
	if service == "" {
		service = defaultService
	}
	return service + "_" + day.Format("2006-01-02") + ".log"
}

// Slog returns the logger for slog.SetDefault or direct use.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the log file. Calling it again is a no-op.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// traceHandler adds trace_id and span_id from the record's context.
type traceHandler struct {
	next slog.Handler
}

func (h traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r = r.Clone()
			r.AddAttrs(
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{next: h.next.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{next: h.next.WithGroup(name)}
}

// fanout sends each record to every sink enabled for its level. The first
// sink error is returned after all sinks have been tried.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(apply func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = apply(h)
	}
	return out
}

// expandHome replaces a leading "~" or "~/" with the home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
