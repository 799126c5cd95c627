// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lint

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for check tool operations.
var (
	tracer = otel.Tracer("breakwater.lint")
	meter  = otel.Meter("breakwater.lint")
)

// Metrics for tool executions.
var (
	toolLatency   metric.Float64Histogram
	toolTotal     metric.Int64Counter
	issuesFound   metric.Int64Histogram
	errorsFound   metric.Int64Counter
	warningsFound metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		toolLatency, err = meter.Float64Histogram(
			"check_tool_duration_seconds",
			metric.WithDescription("Duration of check tool executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		toolTotal, err = meter.Int64Counter(
			"check_tool_total",
			metric.WithDescription("Total number of check tool executions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		issuesFound, err = meter.Int64Histogram(
			"check_issues_found",
			metric.WithDescription("Number of issues found per tool execution"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		errorsFound, err = meter.Int64Counter(
			"check_errors_found_total",
			metric.WithDescription("Total number of blocking issues found"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		warningsFound, err = meter.Int64Counter(
			"check_warnings_found_total",
			metric.WithDescription("Total number of warning issues found"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startToolSpan creates a span for one tool execution.
func startToolSpan(ctx context.Context, kind, language, filePath string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "lint.Runner."+kind,
		trace.WithAttributes(
			attribute.String("check.kind", kind),
			attribute.String("check.language", language),
			attribute.String("check.file_path", filePath),
		),
	)
}

// setToolSpanResult sets the result attributes on a tool span.
func setToolSpanResult(span trace.Span, errorCount, warningCount int, toolAvailable bool) {
	span.SetAttributes(
		attribute.Int("check.error_count", errorCount),
		attribute.Int("check.warning_count", warningCount),
		attribute.Bool("check.tool_available", toolAvailable),
	)
}

// recordToolMetrics records metrics for one tool execution.
func recordToolMetrics(ctx context.Context, kind, language string, duration time.Duration, errorCount, warningCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	toolLatency.Record(ctx, duration.Seconds(), attrs)
	toolTotal.Add(ctx, 1, attrs)

	if success {
		langAttrs := metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("language", language),
		)
		issuesFound.Record(ctx, int64(errorCount+warningCount), langAttrs)
		errorsFound.Add(ctx, int64(errorCount), langAttrs)
		warningsFound.Add(ctx, int64(warningCount), langAttrs)
	}
}
