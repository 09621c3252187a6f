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
)

func newCouncilCmd(opts *rootOptions) *cobra.Command {
	councilCmd := &cobra.Command{
		Use:   "council",
		Short: "Ask the philosopher, engineer and guardian for a verdict",
	}

	var contextPairs []string
	deliberateCmd := &cobra.Command{
		Use:   "deliberate [action...]",
		Short: "Deliberate on an action; any single dissent vetoes it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actionContext, err := parseContext(contextPairs)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				verdict, err := a.council.Deliberate(ctx, joinArgs(args), actionContext)
				if err != nil {
					return err
				}
				if ok, err := a.emit(verdict); ok {
					return err
				}
				renderVerdict(a.printer, verdict)
				return nil
			})
		},
	}
	deliberateCmd.Flags().StringArrayVar(&contextPairs, "context", nil, "context for the advisors as key=value (repeatable)")

	councilCmd.AddCommand(deliberateCmd)
	return councilCmd
}
