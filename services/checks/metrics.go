// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checks

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for pipeline runs.
var (
	tracer = otel.Tracer("breakwater.checks")
	meter  = otel.Meter("breakwater.checks")
)

var (
	runLatency metric.Float64Histogram
	runTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"check_run_duration_seconds",
			metric.WithDescription("Duration of full pipeline runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"check_run_total",
			metric.WithDescription("Total number of pipeline runs by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRunSpan creates the span covering one pipeline run.
func startRunSpan(ctx context.Context, file string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "checks.Pipeline.Run",
		trace.WithAttributes(
			attribute.String("check.file", file),
		),
	)
}

// finishRunSpan records the run outcome and ends the span.
func finishRunSpan(span trace.Span, report *Report) {
	span.SetAttributes(
		attribute.String("check.run_id", report.RunID),
		attribute.String("check.language", report.Language),
		attribute.Bool("check.applied", report.Applied),
		attribute.Bool("check.failed", report.Failed()),
		attribute.Int("check.invocations", len(report.Invocations)),
		attribute.Int("check.messages", len(report.Messages)),
	)
	span.End()
}

// recordRunMetrics records metrics for one completed run.
func recordRunMetrics(report *Report) {
	if err := initMetrics(); err != nil {
		return
	}

	result := "skipped"
	switch {
	case report.Failed():
		result = "failed"
	case report.Applied:
		result = "passed"
	}

	attrs := metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("language", report.Language),
	)
	ctx := context.Background()
	runLatency.Record(ctx, report.Duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
}
