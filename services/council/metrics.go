// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package council

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("conscience.council")
	meter  = otel.Meter("conscience.council")
)

var (
	deliberationsTotal  metric.Int64Counter
	consensusLevel      metric.Float64Histogram
	deliberationLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		deliberationsTotal, err = meter.Int64Counter(
			"council_deliberations_total",
			metric.WithDescription("Deliberations by outcome (approved, rejected, error)"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		consensusLevel, err = meter.Float64Histogram(
			"council_consensus_level",
			metric.WithDescription("Approving share of the panel per completed deliberation"),
			metric.WithExplicitBucketBoundaries(0, 0.34, 0.67, 1),
		)
		if err != nil {
			metricsErr = err
			return
		}

		deliberationLatency, err = meter.Float64Histogram(
			"council_deliberation_duration_seconds",
			metric.WithDescription("Wall time of a deliberation including advisor calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordDeliberation(ctx context.Context, outcome string, consensus float64, elapsed time.Duration) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	deliberationsTotal.Add(ctx, 1, attrs)
	deliberationLatency.Record(ctx, elapsed.Seconds(), attrs)
	if outcome != "error" {
		consensusLevel.Record(ctx, consensus)
	}
}
