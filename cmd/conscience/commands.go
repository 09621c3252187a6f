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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conscience/pkg/validation"
)

// newRootCmd builds the full command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "conscience",
		Short: "Accountability layer for AI-initiated actions",
		Long: `Conscience records who asked for every action, stops risky actions for
human confirmation, asks a three-member council for unanimous approval and
audits generated text for flattery and ungrounded claims.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.conscience/conscience.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&opts.offline, "offline", false, "use the deterministic offline council instead of a model")
	pf.StringVar(&opts.output, "output", "", "output style: styled or plain (default: auto)")
	pf.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newGenesisCmd(opts),
		newGateCmd(opts),
		newCouncilCmd(opts),
		newAuditCmd(opts),
		newRunCmd(opts),
	)
	return rootCmd
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Warn("close failed", "error", cerr)
		}
	}()
	return fn(ctx, a)
}

// joinArgs turns positional words into one action string.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseContext turns key=value pairs into an advisor context map.
func parseContext(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	ctx := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid context %q, want key=value", pair)
		}
		ctx[strings.TrimSpace(key)] = value
	}
	return ctx, nil
}

// validateOrigin checks the initiator and optional parent of a new record.
func validateOrigin(initiator, parentID string) error {
	if err := validation.ValidateInitiator(initiator); err != nil {
		return err
	}
	if parentID != "" {
		return validation.ValidateGenesisID(parentID)
	}
	return nil
}
