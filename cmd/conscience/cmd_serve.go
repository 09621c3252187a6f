// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/conscience/cmd/conscience/config"
	"github.com/AleutianAI/conscience/services/gateway"
	"github.com/AleutianAI/conscience/services/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				srv := gateway.New(a.ledger, a.council,
					gateway.WithGate(a.gate),
					gateway.WithFilter(a.filter),
					gateway.WithLogger(a.logger),
					gateway.WithRateLimit(a.cfg.Server.RateLimit, a.cfg.Server.Burst),
				)

				tcfg := a.cfg.Telemetry
				tcfg.Registerer = srv.Metrics().Registry
				shutdown, err := telemetry.Init(ctx, tcfg)
				if err != nil {
					return err
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(sctx); err != nil {
						a.logger.Warn("telemetry shutdown failed", "error", err)
					}
				}()

				if a.cfg.Gate.LexiconPath != "" && a.cfg.Gate.Watch {
					path := config.ExpandPath(a.cfg.Gate.LexiconPath)
					if err := a.gate.Watch(ctx, path); err != nil {
						return fmt.Errorf("watch lexicon: %w", err)
					}
					a.logger.Info("watching gate lexicon", "path", path)
				}

				if addr == "" {
					addr = a.cfg.Server.Address
				}
				return srv.Run(ctx, addr)
			})
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return serveCmd
}
