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
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var (
		fragments []string
		basis     string
		layerName string
	)
	auditCmd := &cobra.Command{
		Use:   "audit [text...]",
		Short: "Score text for flattery and groundedness in the given fragments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layer, err := audit.ParseLayer(layerName)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				result := a.filter.Audit(ctx, joinArgs(args), fragments, audit.WithBasis(basis), audit.WithLayer(layer))
				if ok, err := a.emit(result); ok {
					return err
				}
				renderAudit(a.printer, result)
				return nil
			})
		},
	}
	auditCmd.Flags().StringArrayVar(&fragments, "fragment", nil, "context fragment grounding the text (repeatable)")
	auditCmd.Flags().StringVar(&basis, "basis", audit.BasisInference, "basis of the action")
	auditCmd.Flags().StringVar(&layerName, "layer", string(audit.LayerSemantic), "layer: operational, semantic, metaphor")
	return auditCmd
}
