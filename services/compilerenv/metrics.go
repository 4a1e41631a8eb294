// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compilerenv

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("webdemo.compilerenv")
	meter  = otel.Meter("webdemo.compilerenv")
)

var (
	bootstrapAttempts metric.Int64Counter
	bootstrapDuration metric.Float64Histogram
	artifactLookups   metric.Int64Counter
	environmentReady  metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		bootstrapAttempts, err = meter.Int64Counter(
			"webdemo_bootstrap_attempts_total",
			metric.WithDescription("Compiler environment bootstrap attempts by status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		bootstrapDuration, err = meter.Float64Histogram(
			"webdemo_bootstrap_duration_seconds",
			metric.WithDescription("Duration of compiler environment bootstrap attempts"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		artifactLookups, err = meter.Int64Counter(
			"webdemo_artifact_lookups_total",
			metric.WithDescription("Library artifact lookups by artifact and result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		environmentReady, err = meter.Int64UpDownCounter(
			"webdemo_environment_ready",
			metric.WithDescription("1 while a compiler environment is ready"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startBootstrapSpan(ctx context.Context, attempt int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Initializer.Bootstrap",
		trace.WithAttributes(attribute.Int64("bootstrap.attempt", attempt)),
	)
}

func endBootstrapSpan(span trace.Span, out *Outcome) {
	span.SetAttributes(
		attribute.String("bootstrap.status", out.Status.String()),
		attribute.String("bootstrap.reason", string(out.Reason)),
		attribute.Int("bootstrap.warnings", len(out.Warnings)),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	span.End()
}

func recordBootstrap(ctx context.Context, out *Outcome, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("status", out.Status.String()),
		attribute.String("reason", string(out.Reason)),
	)
	bootstrapAttempts.Add(ctx, 1, attrs)
	bootstrapDuration.Record(ctx, duration.Seconds(), attrs)
	if out.OK() {
		environmentReady.Add(ctx, 1)
	}
}

func recordLookup(ctx context.Context, artifact string, found bool) {
	if err := initMetrics(); err != nil {
		return
	}
	artifactLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("artifact", artifact),
		attribute.Bool("found", found),
	))
}

func recordClose(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	environmentReady.Add(ctx, -1)
}
