// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("conscience.audit")
	meter  = otel.Meter("conscience.audit")
)

var (
	auditResults metric.Int64Counter
	tensionScore metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		auditResults, err = meter.Int64Counter(
			"audit_results_total",
			metric.WithDescription("Benevolence audits by final result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		tensionScore, err = meter.Float64Histogram(
			"audit_tension_score",
			metric.WithDescription("Composite grounding/honesty tension per audit"),
			metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 0.75, 0.9, 1),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordAudit(ctx context.Context, a *Audit) {
	if initMetrics() != nil {
		return
	}
	auditResults.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(a.FinalResult))))
	tensionScore.Record(ctx, a.TensionScore)
}
