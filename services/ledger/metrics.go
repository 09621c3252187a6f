// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("conscience.ledger")
	meter  = otel.Meter("conscience.ledger")
)

var (
	recordsCreated metric.Int64Counter
	confirmations  metric.Int64Counter
	chainDepth     metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		recordsCreated, err = meter.Int64Counter(
			"ledger_records_created_total",
			metric.WithDescription("Genesis records created by responsibility tier"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		confirmations, err = meter.Int64Counter(
			"ledger_confirmations_total",
			metric.WithDescription("Confirmation attempts by outcome (confirmed, unknown_id)"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		chainDepth, err = meter.Int64Histogram(
			"ledger_chain_depth",
			metric.WithDescription("Length of reconstructed responsibility chains"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCreated(ctx context.Context, tier Tier) {
	if initMetrics() != nil {
		return
	}
	recordsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier.String())))
}

func recordConfirmation(ctx context.Context, found bool) {
	if initMetrics() != nil {
		return
	}
	outcome := "confirmed"
	if !found {
		outcome = "unknown_id"
	}
	confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordChain(ctx context.Context, depth int) {
	if initMetrics() != nil {
		return
	}
	chainDepth.Record(ctx, int64(depth))
}
