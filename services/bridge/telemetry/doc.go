// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for ternbridge.
//
// Init installs the global TracerProvider and MeterProvider. Packages that
// instrument themselves (tern queries, editor commands) use otel.Tracer and
// otel.Meter directly and pick up whatever Init configured; before Init, or
// with both exporters set to "none", they record into no-op providers.
//
// # Exporters
//
// Traces: "otlp" (gRPC), "stdout", or "none".
// Metrics: "prometheus", "stdout", or "none".
//
// The stdout exporters write to stderr. When the bridge runs as a stdio host,
// stdout carries the editor protocol and must not receive anything else.
//
// # Status Server
//
// NewStatusRouter builds a gin engine with otelgin middleware exposing
// /healthz (the analysis server session snapshot) and, when the Prometheus
// exporter is active, /metrics. StartStatusServer serves it in the
// background for `ternbridge serve --status-addr`.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
