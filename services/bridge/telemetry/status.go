// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
	Session tern.Snapshot `json:"session"`
}

// StatusOptions configures NewStatusRouter.
type StatusOptions struct {
	// ServiceName names the otelgin server spans.
	ServiceName string

	// Version is reported by /healthz.
	Version string

	// Snapshot reads the current session state.
	Snapshot func() tern.Snapshot

	// Metrics serves /metrics. Nil omits the route.
	Metrics http.Handler
}

// NewStatusRouter builds the status endpoint router.
//
// Description:
//
//	GET /healthz always answers 200 while the bridge process is alive; the
//	analysis server's own state is reported inside "session". GET /metrics
//	is registered only when opts.Metrics is set.
//
// Inputs:
//
//	opts - Service identity, session reader and metrics handler.
//
// Outputs:
//
//	*gin.Engine - The router, with otelgin tracing middleware installed.
func NewStatusRouter(opts StatusOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "ternbridge"
	}
	started := time.Now()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))

	router.GET("/healthz", func(c *gin.Context) {
		resp := HealthResponse{
			Status:  "ok",
			Version: opts.Version,
			Uptime:  time.Since(started).Truncate(time.Second).String(),
		}
		if opts.Snapshot != nil {
			resp.Session = opts.Snapshot()
		}
		c.JSON(http.StatusOK, resp)
	})

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	return router
}

// StatusServer serves a status router in the background.
type StatusServer struct {
	server   *http.Server
	listener net.Listener
	done     chan error
	logger   *slog.Logger
}

// StartStatusServer binds addr and serves handler until Shutdown.
//
// Inputs:
//
//	addr - host:port to listen on; port 0 picks a free port.
//	handler - Typically NewStatusRouter's engine.
//	logger - Receives the serve error if the server stops unexpectedly.
//
// Outputs:
//
//	*StatusServer - The running server.
//	error - Non-nil if addr cannot be bound.
func StartStatusServer(addr string, handler http.Handler, logger *slog.Logger) (*StatusServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status server listen %s: %w", addr, err)
	}

	s := &StatusServer{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
		logger:   logger,
	}

	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", slog.String("error", err.Error()))
		}
		s.done <- err
	}()

	logger.Info("status server listening", slog.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound address.
func (s *StatusServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *StatusServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	<-s.done
	return nil
}
