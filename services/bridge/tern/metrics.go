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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for tern queries.
var (
	tracer = otel.Tracer("ternbridge.tern")
	meter  = otel.Meter("ternbridge.tern")
)

// Metrics for tern queries.
var (
	queryLatency metric.Float64Histogram
	queryTotal   metric.Int64Counter
	serverSpawns metric.Int64Counter
	resultCount  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryLatency, err = meter.Float64Histogram(
			"ternbridge_query_duration_seconds",
			metric.WithDescription("Duration of tern queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"ternbridge_query_total",
			metric.WithDescription("Total number of tern queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		serverSpawns, err = meter.Int64Counter(
			"ternbridge_server_spawns_total",
			metric.WithDescription("Total number of tern server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resultCount, err = meter.Int64Histogram(
			"ternbridge_result_count",
			metric.WithDescription("Number of items returned by tern queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startQuerySpan creates a span for a tern query.
func startQuerySpan(ctx context.Context, query QueryType, file string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Operations."+string(query),
		trace.WithAttributes(
			attribute.String("tern.query", string(query)),
			attribute.String("tern.file", file),
		),
	)
}

// setQuerySpanResult sets the result attributes on a query span.
func setQuerySpanResult(span trace.Span, resultCnt int, success bool) {
	span.SetAttributes(
		attribute.Int("tern.result_count", resultCnt),
		attribute.Bool("tern.success", success),
	)
}

// recordQueryMetrics records metrics for one query.
func recordQueryMetrics(ctx context.Context, query QueryType, duration time.Duration, resultCnt int, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("query", string(query)),
		attribute.String("outcome", outcome),
	)

	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryTotal.Add(ctx, 1, attrs)

	if outcome == outcomeOK {
		resultCount.Record(ctx, int64(resultCnt), metric.WithAttributes(
			attribute.String("query", string(query)),
		))
	}
}

// recordServerSpawn records a server spawn attempt.
func recordServerSpawn(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	serverSpawns.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
