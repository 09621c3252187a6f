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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conscience/cmd/conscience/config"
	"github.com/AleutianAI/conscience/pkg/logging"
	"github.com/AleutianAI/conscience/pkg/ux"
	"github.com/AleutianAI/conscience/services/advisor"
	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/ledger"
	"github.com/AleutianAI/conscience/services/llm"
	storage "github.com/AleutianAI/conscience/services/storage/badger"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	offline    bool
	output     string
	jsonOut    bool
}

// app is the set of components one command invocation works with.
type app struct {
	cfg     config.ConscienceConfig
	log     *logging.Logger
	logger  *slog.Logger
	ledger  *ledger.Ledger
	gate    *gate.Gate
	council *council.Council
	filter  *audit.Filter

	stdout  io.Writer
	printer *ux.Printer
	jsonOut bool
}

// newApp loads the config and opens every component.
func newApp(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	if opts.offline {
		cfg.Council.Offline = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	level, ok := logging.ParseLevel(cfg.Logging.Level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.Logging.Level)
	}
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.LogDir,
		Service: "conscience",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	logger := log.Slog()

	a := &app{
		cfg:     cfg,
		log:     log,
		logger:  logger,
		stdout:  cmd.OutOrStdout(),
		jsonOut: opts.jsonOut,
	}
	mode := ux.DetectMode(os.Stdout)
	if opts.output != "" {
		mode = ux.ParseMode(opts.output)
	}
	a.printer = ux.NewPrinter(a.stdout, mode)

	a.gate = gate.New(gate.WithLogger(logger))
	if cfg.Gate.LexiconPath != "" {
		if err := a.gate.LoadFile(config.ExpandPath(cfg.Gate.LexiconPath)); err != nil {
			_ = log.Close()
			return nil, err
		}
	}

	if a.ledger, err = openLedger(ctx, cfg.Ledger, logger); err != nil {
		_ = log.Close()
		return nil, err
	}

	adv, err := newAdvisor(cfg.Council, a.gate, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.council = council.New(adv,
		council.WithGate(a.gate),
		council.WithLogger(logger),
		council.WithHistoryLimit(cfg.Council.HistoryLimit),
	)
	a.filter = audit.NewFilter(cfg.Audit.Protocol)
	return a, nil
}

// openLedger opens the journal with the configured index store.
func openLedger(ctx context.Context, cfg config.LedgerConfig, logger *slog.Logger) (*ledger.Ledger, error) {
	journal := config.ExpandPath(cfg.JournalPath)
	if err := os.MkdirAll(filepath.Dir(journal), 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	opts := ledger.Options{
		JournalPath: journal,
		SyncWrites:  cfg.SyncWrites,
		Logger:      logger,
	}
	if cfg.Index == config.IndexBadger {
		dbCfg := storage.DefaultConfig(config.ExpandPath(cfg.BadgerDir))
		dbCfg.Logger = logger
		store, err := ledger.OpenBadgerStore(dbCfg)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}
	l, err := ledger.Open(ctx, opts)
	if err != nil && opts.Store != nil {
		_ = opts.Store.Close()
	}
	return l, err
}

// newAdvisor returns the offline advisor or an LLM-backed one.
func newAdvisor(cfg config.CouncilConfig, g *gate.Gate, logger *slog.Logger) (council.Advisor, error) {
	if cfg.Offline {
		logger.Debug("council running offline")
		return advisor.Offline{Gate: g}, nil
	}
	backend := cfg.LLM
	backend.Logger = logger
	client, err := llm.New(backend)
	if err != nil {
		return nil, fmt.Errorf("council advisor: %w", err)
	}
	return advisor.NewLLMAdvisor(client, advisor.WithLogger(logger)), nil
}

// Close releases the ledger and log file and wipes any sealed API keys.
func (a *app) Close() error {
	if !a.cfg.Council.Offline {
		llm.Purge()
	}
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
	}
	return errors.Join(errs...)
}

// emit writes v as indented JSON when --json is set and reports whether it
// did so.
func (a *app) emit(v any) (bool, error) {
	if !a.jsonOut {
		return false, nil
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
