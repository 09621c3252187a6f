// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all gateway metrics.
const metricsNamespace = "conscience"

// Metrics holds the Prometheus collectors served on /metrics.
//
// # Description
//
// Each Server owns its own registry so several servers (and tests) can
// coexist in one process without duplicate registration panics.
//
// # Thread Safety
//
// All operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	// Registry backs the /metrics endpoint.
	Registry *prometheus.Registry

	// RequestsTotal counts HTTP requests.
	// Labels: route (gin full path or "unmatched"), status (HTTP code)
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures handler latency.
	// Labels: route
	RequestDurationSeconds *prometheus.HistogramVec

	// GateDecisionsTotal counts gate checks.
	// Labels: required (true, false)
	GateDecisionsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests refused by the limiter.
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers the gateway collectors on a fresh
// registry, together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"route"},
		),

		GateDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "gate",
				Name:      "decisions_total",
				Help:      "Confirmation gate checks by outcome",
			},
			[]string{"required"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests refused by the rate limiter",
			},
		),
	}
}
