/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package genai

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics provides OpenTelemetry counters for generative AI token
// usage, including cache reads and writes, with graceful degradation if
// counter creation fails.
type Metrics struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	cacheReadTokens  metric.Int64Counter
	cacheWriteTokens metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the specified meter name.
// If any counter fails to initialize, a warning is logged and a no-op
// counter is used instead of failing entirely.
//
// The meterName should be unified across all callers, with the span
// name serving as a dimension on the recorded metrics.
func NewMetrics(meterName string) *Metrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		completionTokens = noop.Int64Counter{}
	}

	cacheReadTokens, err := meter.Int64Counter("genai.token.cache_read",
		metric.WithDescription("The number of prompt tokens served from provider cache"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create cache read tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		cacheReadTokens = noop.Int64Counter{}
	}

	cacheWriteTokens, err := meter.Int64Counter("genai.token.cache_write",
		metric.WithDescription("The number of prompt tokens written to provider cache"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create cache write tokens counter, metrics will be disabled", "error", err, "meter", meterName)
		cacheWriteTokens = noop.Int64Counter{}
	}

	return &Metrics{
		meter:            meter,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		cacheReadTokens:  cacheReadTokens,
		cacheWriteTokens: cacheWriteTokens,
	}
}

// RecordUsage records one invocation's token usage. The span name is
// added as a base attribute to differentiate call sites.
func (m *Metrics) RecordUsage(ctx context.Context, spanName string, u Usage, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	baseAttrs := append([]attribute.KeyValue{
		attribute.String("span", spanName),
	}, attrs...)

	opt := metric.WithAttributes(baseAttrs...)
	m.promptTokens.Add(ctx, u.PromptTokens, opt)
	m.completionTokens.Add(ctx, u.CompletionTokens, opt)
	m.cacheReadTokens.Add(ctx, u.CacheReadTokens, opt)
	m.cacheWriteTokens.Add(ctx, u.CacheWriteTokens, opt)
}
