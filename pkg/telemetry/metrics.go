// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StageMetrics tracks per-stage execution counts and latency for the
// workflow engine.
type StageMetrics struct {
	stageCounter   metric.Int64Counter
	errorCounter   metric.Int64Counter
	stageLatencyMs metric.Float64Histogram
}

// NewStageMetrics creates a stage metrics tracker with OTEL meters.
func NewStageMetrics() (*StageMetrics, error) {
	meter := otel.Meter("brigade/workflow")

	stageCounter, err := meter.Int64Counter(
		"brigade.stages.total",
		metric.WithDescription("Stage executions by stage name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"brigade.stages.absorbed_errors",
		metric.WithDescription("Stage failures absorbed into run context"),
	)
	if err != nil {
		return nil, err
	}

	stageLatencyMs, err := meter.Float64Histogram(
		"brigade.stages.latency_ms",
		metric.WithDescription("Stage execution latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &StageMetrics{
		stageCounter:   stageCounter,
		errorCounter:   errorCounter,
		stageLatencyMs: stageLatencyMs,
	}, nil
}

// RecordStage records one stage execution.
func (m *StageMetrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration, absorbed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if absorbed {
		outcome = "absorbed_error"
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
		))
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	)
	m.stageCounter.Add(ctx, 1, attrs)
	m.stageLatencyMs.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}
