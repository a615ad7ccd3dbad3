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
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ternbridge/services/bridge/commands"
	"github.com/AleutianAI/ternbridge/services/bridge/config"
	"github.com/AleutianAI/ternbridge/services/bridge/stdio"
	"github.com/AleutianAI/ternbridge/services/bridge/telemetry"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
	"github.com/AleutianAI/ternbridge/services/bridge/watch"
)

// runServe runs the NDJSON bridge until the editor says shutdown, closes
// stdin, or the process is signalled.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr, _ := cmd.Flags().GetString("status-addr"); addr != "" {
		cfg.Telemetry.StatusAddr = addr
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	var server *stdio.Server
	session := tern.NewSession(cfg.SessionConfig(),
		tern.WithLogger(slog.Default()),
		tern.WithNotifier(tern.NotifierFunc(func(err error) {
			server.NotifyError(err)
		})),
	)
	d := commands.NewDispatcher(tern.NewOperations(session), dispatcherOptions(cfg), slog.Default())

	events, stopWatch, err := watchTemplate(ctx, cfg)
	if err != nil {
		slog.Warn("Not watching the project template", slog.String("error", err.Error()))
	}
	defer stopWatch()

	if cfg.Telemetry.StatusAddr != "" {
		status, err := startStatus(cfg.Telemetry.StatusAddr, session)
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = status.Shutdown(sctx)
		}()
	}

	server = stdio.NewServer(d, os.Stdin, os.Stdout, stdio.Options{
		Finder: cfg.Finder(),
		Events: events,
		Logger: slog.Default(),
	})

	slog.Info("Bridge serving on stdio", slog.String("version", version))
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func telemetryConfig(c *config.Config) telemetry.Config {
	t := telemetry.DefaultConfig()
	t.ServiceVersion = version
	t.TraceExporter = c.Telemetry.TraceExporter
	t.MetricExporter = c.Telemetry.MetricExporter
	t.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	t.OTLPInsecure = c.Telemetry.OTLPInsecure
	t.Output = os.Stderr
	return t
}

// watchTemplate watches the user's project template. The channel is nil
// when there is nothing to watch.
func watchTemplate(ctx context.Context, c *config.Config) (<-chan watch.Change, func(), error) {
	noop := func() {}
	if !c.Tern.WatchTemplate || c.Tern.TemplatePath == "" {
		return nil, noop, nil
	}

	events := make(chan watch.Change, 1)
	w, err := watch.New([]string{c.Tern.TemplatePath}, func(change watch.Change) {
		// A restart is already queued when the buffer is full.
		select {
		case events <- change:
		default:
		}
	}, &watch.Options{Logger: slog.Default()})
	if err != nil {
		return nil, noop, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, noop, err
	}
	slog.Info("Watching project template", slog.String("path", c.Tern.TemplatePath))
	return events, w.Stop, nil
}

func startStatus(addr string, session *tern.Session) (*telemetry.StatusServer, error) {
	gin.SetMode(gin.ReleaseMode)
	router := telemetry.NewStatusRouter(telemetry.StatusOptions{
		ServiceName: "ternbridge",
		Version:     version,
		Snapshot:    session.Snapshot,
		Metrics:     telemetry.MetricsHandler(),
	})
	return telemetry.StartStatusServer(addr, router, slog.Default())
}
