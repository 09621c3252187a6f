// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway exposes the ledger, gate, council and audit over HTTP.
//
// # Routes
//
//	GET  /health
//	GET  /metrics
//	POST /v1/genesis
//	GET  /v1/genesis/:id
//	POST /v1/genesis/:id/confirm
//	GET  /v1/genesis/:id/chain
//	POST /v1/gate/check
//	POST /v1/council/deliberate
//	GET  /v1/council/history
//	POST /v1/audit
//	POST /v1/actions
//
// Every route runs behind otelgin tracing, request metrics and a shared
// token-bucket rate limiter.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/ledger"
	"github.com/AleutianAI/conscience/services/pipeline"
)

// ServiceName is reported to otelgin.
const ServiceName = "conscience-gateway"

const shutdownTimeout = 5 * time.Second

// Server holds the components served by the gateway.
type Server struct {
	ledger  *ledger.Ledger
	gate    *gate.Gate
	council *council.Council
	filter  *audit.Filter
	logger  *slog.Logger
	metrics *Metrics
	limiter *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithGate sets the confirmation gate. Default: gate.Default().
func WithGate(g *gate.Gate) Option {
	return func(s *Server) {
		if g != nil {
			s.gate = g
		}
	}
}

// WithFilter sets the audit filter. Default: audit.NewFilter("").
func WithFilter(f *audit.Filter) Option {
	return func(s *Server) {
		if f != nil {
			s.filter = f
		}
	}
}

// WithLogger sets the request and server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a gateway server over an open ledger and a council.
func New(l *ledger.Ledger, c *council.Council, opts ...Option) *Server {
	s := &Server{
		ledger:  l,
		gate:    gate.Default(),
		council: c,
		filter:  audit.NewFilter(""),
		logger:  slog.Default(),
		metrics: NewMetrics(),
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the server's Prometheus collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(MetricsMiddleware(s.metrics))
	router.Use(LoggingMiddleware(s.logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.Use(RateLimitMiddleware(s.limiter, s.metrics))
	{
		v1.POST("/genesis", s.handleCreateGenesis())
		v1.GET("/genesis/:id", s.handleGetGenesis())
		v1.POST("/genesis/:id/confirm", s.handleConfirmGenesis())
		v1.GET("/genesis/:id/chain", s.handleGetChain())

		v1.POST("/gate/check", s.handleGateCheck())

		v1.POST("/council/deliberate", s.handleDeliberate())
		v1.GET("/council/history", s.handleHistory())

		v1.POST("/audit", s.handleAudit())

		v1.POST("/actions", s.handleProcessAction())
	}

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("gateway shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}

// pipelineFor builds a pipeline sharing the server's components. approve
// pre-approves every confirmation for this one request.
func (s *Server) pipelineFor(approve bool, note string) *pipeline.Pipeline {
	var confirmer pipeline.Confirmer = pipeline.DenyAll{}
	if approve {
		confirmer = pipeline.ApproveAll{Note: note}
	}
	return pipeline.New(s.ledger, confirmer,
		pipeline.WithGate(s.gate),
		pipeline.WithCouncil(s.council),
		pipeline.WithFilter(s.filter),
		pipeline.WithLogger(s.logger),
	)
}
