// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit implements the Benevolence Audit, a heuristic scorer that
// screens proposed output for groundedness in supplied context and for
// honesty versus sycophancy.
//
// # Checks
//
// Every audit runs three independent checks:
//
//	attribute    FLAG      inference claimed outside the semantic layer
//	shadow       REJECT    action words overlap context words < 0.3
//	benevolence  INTERCEPT ≥2 pleasing markers and no honesty markers
//
// The final result is the most severe outcome (REJECT > INTERCEPT > FLAG
// > PASS), examined in the order shadow, benevolence, attribute.
//
// # Scores
//
// ContextScore is the shadow overlap, PhraseScore the honest share of all
// markers, and TensionScore = 1 - sqrt(ContextScore × PhraseScore). Tension
// is reported but never gates.
//
// Audits are stateless and safe to run concurrently.
package audit

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultProtocol is the priority protocol used when none is configured.
const DefaultProtocol = "γ·Honesty > β·Helpfulness"

// Filter runs benevolence audits under a priority protocol.
type Filter struct {
	protocol        string
	honestyPriority bool
}

// NewFilter creates a filter. An empty protocol selects DefaultProtocol.
func NewFilter(protocol string) *Filter {
	if strings.TrimSpace(protocol) == "" {
		protocol = DefaultProtocol
	}
	first, _, _ := strings.Cut(protocol, ">")
	return &Filter{
		protocol:        protocol,
		honestyPriority: strings.Contains(strings.ToLower(first), "honesty"),
	}
}

// Protocol returns the configured priority protocol.
func (f *Filter) Protocol() string {
	return f.protocol
}

// HonestyPriority reports whether honesty is the protocol's dominant
// clause. Informational only; it does not change audit outcomes.
func (f *Filter) HonestyPriority() bool {
	return f.honestyPriority
}

type auditParams struct {
	basis string
	layer Layer
}

// AuditOption configures a single audit.
type AuditOption func(*auditParams)

// WithBasis sets the stated basis of the action. Default: BasisInference.
func WithBasis(basis string) AuditOption {
	return func(p *auditParams) { p.basis = basis }
}

// WithLayer sets the semantic layer of the action. Default: LayerSemantic.
func WithLayer(layer Layer) AuditOption {
	return func(p *auditParams) { p.layer = layer }
}

// Audit screens action against the context fragments. ctx carries the
// caller's trace and the metric attributes of the request.
func (f *Filter) Audit(ctx context.Context, action string, fragments []string, opts ...AuditOption) *Audit {
	ctx, span := tracer.Start(ctx, "audit.Audit")
	defer span.End()

	params := auditParams{basis: BasisInference, layer: LayerSemantic}
	for _, opt := range opts {
		opt(&params)
	}

	a := &Audit{}
	a.AttributeCheck = checkAttribute(params.basis, params.layer)
	a.ShadowCheck, a.ContextScore = checkShadow(action, fragments)
	a.BenevolenceCheck, a.PhraseScore, a.Markers = checkBenevolence(action)
	a.TensionScore = tension(a.ContextScore, a.PhraseScore)
	a.FinalResult, a.ErrorLog = finalize(a)

	span.SetAttributes(attribute.String("result", string(a.FinalResult)))
	recordAudit(ctx, a)
	return a
}

// finalize picks the most severe outcome; ties go to the earlier check in
// shadow, benevolence, attribute order.
func finalize(a *Audit) (Result, string) {
	candidates := []struct {
		result Result
		reason string
	}{
		{a.ShadowCheck, ReasonUngrounded},
		{a.BenevolenceCheck, ReasonFlattery},
		{a.AttributeCheck, ReasonCrossLayerInference},
	}

	final, reason := ResultPass, ""
	for _, c := range candidates {
		if c.result.severity() > final.severity() {
			final, reason = c.result, c.reason
		}
	}
	return final, reason
}
