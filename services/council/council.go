// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package council implements multi-perspective deliberation over proposed
// actions.
//
// # Description
//
// A Council asks an Advisor for one opinion per panel perspective,
// concurrently, and aggregates the three votes into a Verdict:
//
//   - Approved only on unanimity; one dissent vetoes.
//   - ConsensusLevel is the approving share of the panel.
//   - UncertaintyLevel is one minus the mean confidence.
//   - RequiresConfirmation is set by a high-risk action or by any guardian
//     dissent or concern, independent of Approved.
//
// Any advisor failure or malformed opinion fails the whole deliberation.
// A missing vote is never treated as approval.
//
// # Thread Safety
//
// Council is safe for concurrent use.
package council

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/conscience/services/gate"
)

// decisionSeparator joins perspective stances in FinalDecision.
const decisionSeparator = " | "

// Council deliberates over actions with a fixed panel of perspectives.
type Council struct {
	advisor      Advisor
	gate         *gate.Gate
	logger       *slog.Logger
	historyLimit int
	now          func() time.Time

	mu      sync.Mutex
	history []*Verdict
}

// Option configures a Council.
type Option func(*Council)

// WithGate sets the gate whose lexicon drives the high-risk confirmation
// rule. Default: gate.Default().
func WithGate(g *gate.Gate) Option {
	return func(c *Council) {
		if g != nil {
			c.gate = g
		}
	}
}

// WithLogger sets the council logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Council) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHistoryLimit keeps at most n verdicts, evicting the oldest first.
// Zero (the default) keeps every verdict for the life of the council.
func WithHistoryLimit(n int) Option {
	return func(c *Council) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

// New creates a council backed by advisor.
func New(advisor Advisor, opts ...Option) *Council {
	c := &Council{
		advisor: advisor,
		gate:    gate.Default(),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliberate asks every panel perspective about action and aggregates the
// votes.
//
// # Inputs
//
//   - ctx: Cancels all outstanding advisor calls.
//   - action: The proposed action text.
//   - actionContext: Free-form context passed verbatim to the advisor.
//
// # Outputs
//
//   - *Verdict: The verdict, also appended to History.
//   - error: Non-nil if any advisor call fails or returns an opinion that
//     does not validate (wraps ErrMalformedOpinion). Nothing is appended
//     to history in that case.
func (c *Council) Deliberate(ctx context.Context, action string, actionContext map[string]any) (*Verdict, error) {
	ctx, span := tracer.Start(ctx, "council.Deliberate", trace.WithAttributes(
		attribute.Int("panel_size", len(Panel)),
	))
	defer span.End()
	start := time.Now()

	votes := make([]Vote, len(Panel))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range Panel {
		g.Go(func() error {
			opinion, err := c.advisor.Advise(gctx, p, action, actionContext)
			if err != nil {
				return fmt.Errorf("council: %s advisor: %w", p, err)
			}
			if err := opinion.Validate(); err != nil {
				return fmt.Errorf("council: %s advisor: %w", p, err)
			}
			votes[i] = Vote{
				Perspective: p,
				Stance:      opinion.Stance,
				Concerns:    append([]string(nil), opinion.Concerns...),
				Approval:    opinion.Approval,
				Confidence:  opinion.Confidence,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		recordDeliberation(ctx, "error", 0, time.Since(start))
		c.logger.Warn("council deliberation failed", "error", err)
		return nil, err
	}

	verdict := aggregate(action, votes, c.gate.ContainsHighRisk(action))
	verdict.ID = uuid.NewString()
	verdict.DeliberatedAt = c.now()

	c.mu.Lock()
	c.history = append(c.history, verdict)
	if c.historyLimit > 0 && len(c.history) > c.historyLimit {
		c.history = append([]*Verdict(nil), c.history[len(c.history)-c.historyLimit:]...)
	}
	c.mu.Unlock()

	outcome := "rejected"
	if verdict.Approved {
		outcome = "approved"
	}
	span.SetAttributes(
		attribute.Bool("approved", verdict.Approved),
		attribute.Float64("consensus_level", verdict.ConsensusLevel),
		attribute.Bool("requires_confirmation", verdict.RequiresConfirmation),
	)
	recordDeliberation(ctx, outcome, verdict.ConsensusLevel, time.Since(start))
	c.logger.Info("council deliberated",
		"verdict_id", verdict.ID,
		"approved", verdict.Approved,
		"consensus", verdict.ConsensusLevel,
		"uncertainty", verdict.UncertaintyLevel,
		"requires_confirmation", verdict.RequiresConfirmation,
	)
	return verdict.clone(), nil
}

// History returns a copy of past verdicts, oldest first.
func (c *Council) History() []*Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Verdict, len(c.history))
	for i, v := range c.history {
		out[i] = v.clone()
	}
	return out
}

// aggregate combines a complete panel of votes. votes must be in panel
// order.
func aggregate(action string, votes []Vote, highRisk bool) *Verdict {
	approvals := 0
	confidence := 0.0
	stances := make([]string, len(votes))
	requiresConfirmation := highRisk

	for i, v := range votes {
		if v.Approval {
			approvals++
		}
		confidence += v.Confidence
		stances[i] = fmt.Sprintf("%s: %s", v.Perspective, v.Stance)
		if v.Perspective == Guardian && (!v.Approval || len(v.Concerns) > 0) {
			requiresConfirmation = true
		}
	}

	n := float64(len(votes))
	return &Verdict{
		Action:               action,
		Votes:                votes,
		Approved:             approvals == len(votes),
		ConsensusLevel:       float64(approvals) / n,
		FinalDecision:        strings.Join(stances, decisionSeparator),
		UncertaintyLevel:     1 - confidence/n,
		RequiresConfirmation: requiresConfirmation,
	}
}
