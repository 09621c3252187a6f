// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry tracer and meter providers.
//
// The ledger, council, audit and pipeline packages instrument themselves
// through otel.Tracer and otel.Meter. Until Init runs those calls go to the
// no-op providers, so every component works without telemetry configured.
//
// # Traces
//
// "otlp" exports over a gRPC connection to a collector, "stdout" writes
// JSON spans to Config.Output, "none" leaves tracing off.
//
// # Metrics
//
// "prometheus" registers the OTel exporter with Config.Registerer (the
// gateway passes its own registry so /metrics serves both), "stdout"
// pushes periodically to Config.Output, "none" leaves metrics off.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names accepted in Config.
const (
	ExporterNone       = "none"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext is returned by Init when ctx is nil.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies this service in traces and metrics.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is the version string for this service.
	ServiceVersion string `yaml:"service_version"`

	// Environment identifies the deployment environment.
	Environment string `yaml:"environment"`

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the collector's gRPC address.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// OTLPInsecure uses a plaintext gRPC connection.
	OTLPInsecure bool `yaml:"otlp_insecure"`

	// Registerer receives the OTel prometheus collector.
	// Default: prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer `yaml:"-"`

	// Output receives stdout exporter data. Default: os.Stdout.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns development defaults with telemetry off.
//
// Environment variables override the defaults:
//   - CONSCIENCE_ENV: environment name
//   - OTEL_TRACES_EXPORTER: trace exporter
//   - OTEL_METRICS_EXPORTER: metric exporter
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector endpoint
func DefaultConfig() Config {
	return Config{
		ServiceName:    "conscience",
		ServiceVersion: "0.1.0",
		Environment:    getEnvOr("CONSCIENCE_ENV", "development"),
		TraceExporter:  getEnvOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: getEnvOr("OTEL_METRICS_EXPORTER", ExporterNone),
		OTLPEndpoint:   getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init installs the global tracer and meter providers described by cfg.
//
// Outputs:
//
//	shutdown - Flushes and closes every exporter. Must be called on exit.
//	error - Non-nil if an exporter cannot be created. Nothing is installed
//	        globally in that case.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			if err := shutdownFuncs[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	var tp *sdktrace.TracerProvider
	if cfg.TraceExporter != ExporterNone && cfg.TraceExporter != "" {
		var closeConn func(context.Context) error
		tp, closeConn, err = initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("telemetry: init tracer: %w", err)
		}
		if closeConn != nil {
			shutdownFuncs = append(shutdownFuncs, closeConn)
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	var mp *sdkmetric.MeterProvider
	if cfg.MetricExporter != ExporterNone && cfg.MetricExporter != "" {
		mp, err = initMeter(cfg, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("telemetry: init meter: %w", err)
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	if tp != nil {
		otel.SetTracerProvider(tp)
	}
	if mp != nil {
		otel.SetMeterProvider(mp)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return shutdown, nil
}

// initTracer builds the tracer provider. The returned close func releases
// the gRPC connection and is nil for other exporters.
func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	var (
		exporter  sdktrace.SpanExporter
		closeConn func(context.Context) error
		err       error
	)

	switch cfg.TraceExporter {
	case ExporterOTLP:
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		if cfg.OTLPInsecure {
			creds = insecure.NewCredentials()
		}
		conn, dialErr := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
		if dialErr != nil {
			return nil, nil, fmt.Errorf("grpc client for %s: %w", cfg.OTLPEndpoint, dialErr)
		}
		closeConn = func(context.Context) error { return conn.Close() }
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
		}

	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(cfg.Output))

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return tp, closeConn, nil
}

// initMeter builds the meter provider.
func initMeter(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		exporter, err := promexporter.New(promexporter.WithRegisterer(cfg.Registerer))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil

	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Output))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}

// LoggerWithTrace adds trace_id and span_id to logger when ctx carries a
// recording span. Otherwise logger is returned unchanged.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
