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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/ledger"
	"github.com/AleutianAI/conscience/services/pipeline"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		initiator    string
		tierName     string
		parentID     string
		isMine       bool
		contextPairs []string
		output       string
		fragments    []string
		basis        string
		layerName    string
		yes          bool
		skipCouncil  bool
	)

	runCmd := &cobra.Command{
		Use:   "run [action...]",
		Short: "Take an action through genesis, confirmation, council and audit",
		Long: `run records a genesis for the action, asks for confirmation when the gate
requires it, deliberates with the council and, when --output-text is given, audits
the generated text. Confirmation is asked interactively on a terminal and read
as a yes/no line from stdin otherwise.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := ledger.ParseTier(tierName)
			if err != nil {
				return err
			}
			layer, err := audit.ParseLayer(layerName)
			if err != nil {
				return err
			}
			actionContext, err := parseContext(contextPairs)
			if err != nil {
				return err
			}
			if err := validateOrigin(initiator, parentID); err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				confirmer := selectConfirmer(yes, cmd.InOrStdin(), cmd.OutOrStdout(), a.printer)

				popts := []pipeline.Option{
					pipeline.WithGate(a.gate),
					pipeline.WithFilter(a.filter),
					pipeline.WithLogger(a.logger),
				}
				if !skipCouncil {
					popts = append(popts, pipeline.WithCouncil(a.council))
				}

				out, err := pipeline.New(a.ledger, confirmer, popts...).Process(ctx, pipeline.ActionRequest{
					Initiator: initiator,
					Action:    joinArgs(args),
					Tier:      tier,
					ParentID:  parentID,
					IsMine:    isMine,
					Context:   actionContext,
					Output:    output,
					Fragments: fragments,
					Basis:     basis,
					Layer:     layer,
				})
				if err != nil {
					return err
				}
				if ok, err := a.emit(out); ok {
					return err
				}
				renderOutcome(a.printer, out)
				return nil
			})
		},
	}

	f := runCmd.Flags()
	f.StringVar(&initiator, "initiator", "cli_user", "who asked for the action")
	f.StringVar(&tierName, "tier", "USER", "responsibility tier: SYSTEM, DEVELOPER, USER, AI")
	f.StringVar(&parentID, "parent", "", "parent genesis id")
	f.BoolVar(&isMine, "mine", false, "mark the action as owned by the AI")
	f.StringArrayVar(&contextPairs, "context", nil, "context for the advisors as key=value (repeatable)")
	f.StringVar(&output, "output-text", "", "generated text to audit")
	f.StringArrayVar(&fragments, "fragment", nil, "context fragment grounding the output (repeatable)")
	f.StringVar(&basis, "basis", audit.BasisInference, "basis of the output")
	f.StringVar(&layerName, "layer", string(audit.LayerSemantic), "layer: operational, semantic, metaphor")
	f.BoolVarP(&yes, "yes", "y", false, "approve every confirmation without asking")
	f.BoolVar(&skipCouncil, "no-council", false, "skip council deliberation")
	return runCmd
}
