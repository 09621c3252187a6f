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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/conscience/pkg/validation"
	"github.com/AleutianAI/conscience/services/ledger"
)

func newGenesisCmd(opts *rootOptions) *cobra.Command {
	genesisCmd := &cobra.Command{
		Use:     "genesis",
		Aliases: []string{"g"},
		Short:   "Create and inspect provenance records",
	}

	var (
		initiator string
		tierName  string
		parentID  string
		isMine    bool
	)
	createCmd := &cobra.Command{
		Use:   "create [request...]",
		Short: "Record who initiated an action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := ledger.ParseTier(tierName)
			if err != nil {
				return err
			}
			if err := validateOrigin(initiator, parentID); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rec, err := a.ledger.Create(ctx, ledger.CreateRequest{
					Initiator: initiator,
					Request:   joinArgs(args),
					Tier:      tier,
					ParentID:  parentID,
					IsMine:    isMine,
				})
				if err != nil {
					return err
				}
				if ok, err := a.emit(rec); ok {
					return err
				}
				renderRecord(a.printer, rec)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&initiator, "initiator", "cli_user", "who asked for the action")
	createCmd.Flags().StringVar(&tierName, "tier", "USER", "responsibility tier: SYSTEM, DEVELOPER, USER, AI")
	createCmd.Flags().StringVar(&parentID, "parent", "", "parent genesis id")
	createCmd.Flags().BoolVar(&isMine, "mine", false, "mark the action as owned by the AI")

	var reason string
	confirmCmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Record a human confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := validation.SanitizeGenesisID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ok, err := a.ledger.Confirm(ctx, id, reason)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("genesis %s: %w", id, ledger.ErrNotFound)
				}
				rec, err := a.ledger.Get(ctx, id)
				if err != nil {
					return err
				}
				if ok, err := a.emit(rec); ok {
					return err
				}
				a.printer.Success("confirmed " + rec.ID)
				return nil
			})
		},
	}
	confirmCmd.Flags().StringVar(&reason, "reason", "approved by cli user", "confirmation reason")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one genesis record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := validation.SanitizeGenesisID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rec, err := a.ledger.Get(ctx, id)
				if errors.Is(err, ledger.ErrNotFound) {
					return fmt.Errorf("genesis %s: %w", id, err)
				}
				if err != nil {
					return err
				}
				if ok, err := a.emit(rec); ok {
					return err
				}
				renderRecord(a.printer, rec)
				return nil
			})
		},
	}

	chainCmd := &cobra.Command{
		Use:   "chain <id>",
		Short: "Show the responsibility chain ending at a record, root first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := validation.SanitizeGenesisID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				chain, err := a.ledger.GetChain(ctx, id)
				if err != nil {
					return err
				}
				if chain == nil {
					chain = []*ledger.Record{}
				}
				if ok, err := a.emit(chain); ok {
					return err
				}
				renderChain(a.printer, chain)
				return nil
			})
		},
	}

	genesisCmd.AddCommand(createCmd, confirmCmd, showCmd, chainCmd)
	return genesisCmd
}
