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

	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/ledger"
)

// gateCheckResult is the --json shape of "gate check".
type gateCheckResult struct {
	Required     bool                      `json:"required"`
	MatchedTerms []string                  `json:"matched_terms"`
	Confirmation *gate.ConfirmationRequest `json:"confirmation,omitempty"`
}

func newGateCmd(opts *rootOptions) *cobra.Command {
	gateCmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect the confirmation gate",
	}

	var genesisID string
	checkCmd := &cobra.Command{
		Use:   "check [action...]",
		Short: "Report whether an action needs human confirmation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := joinArgs(args)
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var rec *ledger.Record
				if genesisID != "" {
					found, err := a.ledger.Get(ctx, genesisID)
					if err != nil {
						return fmt.Errorf("genesis %s: %w", genesisID, err)
					}
					rec = found
				}

				res := gateCheckResult{
					Required:     a.gate.RequiresConfirmation(action, rec),
					MatchedTerms: a.gate.MatchedTerms(action),
				}
				if res.MatchedTerms == nil {
					res.MatchedTerms = []string{}
				}
				if res.Required {
					req := gate.FormatConfirmationRequest(action, rec, a.gate.Reason(action, rec))
					res.Confirmation = &req
				}

				if ok, err := a.emit(res); ok {
					return err
				}
				if res.Confirmation != nil {
					renderConfirmation(a.printer, *res.Confirmation)
					return nil
				}
				a.printer.Success("no confirmation needed")
				return nil
			})
		},
	}
	checkCmd.Flags().StringVar(&genesisID, "genesis", "", "judge against an existing genesis record")

	termsCmd := &cobra.Command{
		Use:   "terms",
		Short: "List the active high-risk terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				terms := a.gate.Terms()
				if ok, err := a.emit(terms); ok {
					return err
				}
				a.printer.Info(strings.Join(terms, ", "))
				return nil
			})
		},
	}

	gateCmd.AddCommand(checkCmd, termsCmd)
	return gateCmd
}
