// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs an action through the full accountability
// lifecycle.
//
// # Description
//
// Process performs, in order:
//
//  1. Create a genesis record in the ledger.
//  2. Ask the Confirmation Gate; if required, ask the Confirmer. A decline
//     ends the run as StatusCancelled. An approval confirms the record.
//  3. Deliberate with the Council (if configured). A veto ends the run as
//     StatusRejected. If the verdict requires confirmation and none was
//     granted yet, ask the Confirmer again.
//  4. Audit the generated output (if any). REJECT or INTERCEPT ends the run
//     as StatusBlocked.
//
// Hard failures (ledger I/O, advisor errors) are returned as errors; policy
// outcomes are reported through Outcome.Status.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/ledger"
)

var tracer = otel.Tracer("conscience.pipeline")

// Status is the terminal state of a pipeline run.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
	StatusBlocked   Status = "blocked"
)

// ActionRequest is the input to Process.
type ActionRequest struct {
	Initiator string
	Action    string
	Tier      ledger.Tier
	ParentID  string
	IsMine    bool

	// Context is passed to the council advisors.
	Context map[string]any

	// Output is the generated text to audit. Empty skips the audit.
	Output string

	// Fragments ground Output for the shadow check.
	Fragments []string

	// Basis and Layer feed the attribute check. Defaults: Inference, semantic.
	Basis string
	Layer audit.Layer
}

// Outcome reports what happened to an action.
type Outcome struct {
	Status  Status         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Genesis *ledger.Record `json:"genesis"`

	// Confirmations lists every confirmation request shown to the human.
	Confirmations []gate.ConfirmationRequest `json:"confirmations,omitempty"`
	Confirmed     bool                       `json:"confirmed"`

	Verdict *council.Verdict `json:"verdict,omitempty"`
	Audit   *audit.Audit     `json:"audit,omitempty"`
}

// Pipeline wires the ledger, gate, council and audit together.
type Pipeline struct {
	ledger    *ledger.Ledger
	gate      *gate.Gate
	council   *council.Council
	filter    *audit.Filter
	confirmer Confirmer
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGate sets the gate. Default: gate.Default().
func WithGate(g *gate.Gate) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.gate = g
		}
	}
}

// WithCouncil enables deliberation. Without a council step 3 is skipped.
func WithCouncil(c *council.Council) Option {
	return func(p *Pipeline) { p.council = c }
}

// WithFilter sets the audit filter. Default: audit.NewFilter("").
func WithFilter(f *audit.Filter) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.filter = f
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline. A nil confirmer declines every request.
func New(l *ledger.Ledger, confirmer Confirmer, opts ...Option) *Pipeline {
	if confirmer == nil {
		confirmer = DenyAll{}
	}
	p := &Pipeline{
		ledger:    l,
		gate:      gate.Default(),
		filter:    audit.NewFilter(""),
		confirmer: confirmer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs req through the lifecycle.
func (p *Pipeline) Process(ctx context.Context, req ActionRequest) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	rec, err := p.ledger.Create(ctx, ledger.CreateRequest{
		Initiator: req.Initiator,
		Request:   req.Action,
		Tier:      req.Tier,
		ParentID:  req.ParentID,
		IsMine:    req.IsMine,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("pipeline: create genesis: %w", err)
	}
	out := &Outcome{Genesis: rec}
	logger := p.logger.With("genesis_id", rec.ID)
	span.SetAttributes(attribute.String("genesis_id", rec.ID))

	if p.gate.RequiresConfirmation(req.Action, rec) {
		ok, err := p.confirm(ctx, out, req.Action, p.gate.Reason(req.Action, rec))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !ok {
			return p.finish(ctx, out, logger, StatusCancelled, "declined at confirmation gate"), nil
		}
	}

	if p.council != nil {
		verdict, err := p.council.Deliberate(ctx, req.Action, req.Context)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("pipeline: deliberate on %s: %w", rec.ID, err)
		}
		out.Verdict = verdict
		if !verdict.Approved {
			return p.finish(ctx, out, logger, StatusRejected,
				fmt.Sprintf("council veto (consensus %.0f%%)", verdict.ConsensusLevel*100)), nil
		}
		if verdict.RequiresConfirmation && !out.Confirmed {
			ok, err := p.confirm(ctx, out, req.Action, "council requires confirmation: "+verdict.FinalDecision)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			if !ok {
				return p.finish(ctx, out, logger, StatusCancelled, "declined after council deliberation"), nil
			}
		}
	}

	if req.Output != "" {
		var opts []audit.AuditOption
		if req.Basis != "" {
			opts = append(opts, audit.WithBasis(req.Basis))
		}
		if req.Layer != "" {
			opts = append(opts, audit.WithLayer(req.Layer))
		}
		out.Audit = p.filter.Audit(ctx, req.Output, req.Fragments, opts...)
		if out.Audit.FinalResult.Blocking() {
			return p.finish(ctx, out, logger, StatusBlocked, out.Audit.ErrorLog), nil
		}
	}

	return p.finish(ctx, out, logger, StatusApproved, ""), nil
}

// confirm asks the confirmer and, on approval, confirms the genesis record.
func (p *Pipeline) confirm(ctx context.Context, out *Outcome, action, reason string) (bool, error) {
	req := gate.FormatConfirmationRequest(action, out.Genesis, reason)
	out.Confirmations = append(out.Confirmations, req)

	approved, note, err := p.confirmer.Confirm(ctx, req)
	if err != nil {
		return false, fmt.Errorf("pipeline: confirmation for %s: %w", out.Genesis.ID, err)
	}
	if !approved {
		return false, nil
	}

	if note == "" {
		note = "approved: " + reason
	}
	if _, err := p.ledger.Confirm(ctx, out.Genesis.ID, note); err != nil {
		return false, fmt.Errorf("pipeline: record confirmation for %s: %w", out.Genesis.ID, err)
	}
	rec, err := p.ledger.Get(ctx, out.Genesis.ID)
	if err != nil {
		return false, fmt.Errorf("pipeline: reload %s: %w", out.Genesis.ID, err)
	}
	out.Genesis = rec
	out.Confirmed = true
	return true, nil
}

func (p *Pipeline) finish(ctx context.Context, out *Outcome, logger *slog.Logger, status Status, reason string) *Outcome {
	out.Status = status
	out.Reason = reason
	recordOutcome(ctx, status)
	logger.Info("action processed", "status", status, "reason", reason, "confirmed", out.Confirmed)
	return out
}
