// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate implements the Confirmation Gate: it decides whether an
// action must halt for human sign-off and formats the confirmation message
// handed to a caller-facing surface.
//
// The gate holds only its lexicon. Classification and formatting never
// touch ledger state.
package gate

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/conscience/services/ledger"
)

// StatusConfirmationRequired tags a ConfirmationRequest.
const StatusConfirmationRequired = "confirmation_required"

// defaultLexiconYAML is the built-in high-risk lexicon.
//
//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon is the on-disk form of the high-risk term list.
type Lexicon struct {
	HighRiskTerms []string `yaml:"high_risk_terms"`
}

// ParseLexicon decodes a lexicon file. Terms are trimmed, lower-cased and
// de-duplicated in order. An empty term list is an error.
func ParseLexicon(data []byte) ([]string, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("gate: parse lexicon: %w", err)
	}

	seen := make(map[string]bool, len(lex.HighRiskTerms))
	terms := make([]string, 0, len(lex.HighRiskTerms))
	for _, t := range lex.HighRiskTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("gate: lexicon has no high_risk_terms")
	}
	return terms, nil
}

// DefaultTerms returns the built-in high-risk terms.
func DefaultTerms() []string {
	terms, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("gate: embedded lexicon is invalid: %v", err))
	}
	return terms
}

// Gate classifies actions against a high-risk lexicon.
//
// Thread Safety: Safe for concurrent use. The lexicon may be swapped while
// classifications are in flight (see Watch).
type Gate struct {
	mu     sync.RWMutex
	terms  []string
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger used for lexicon reload events.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTerms adds terms to the built-in lexicon. Terms are lower-cased.
// The built-in terms always stay active.
func WithTerms(terms ...string) Option {
	return func(g *Gate) {
		g.terms = extendDefaults(terms)
	}
}

// New creates a gate over the built-in lexicon.
func New(opts ...Option) *Gate {
	g := &Gate{
		terms:  DefaultTerms(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var (
	defaultGate     *Gate
	defaultGateOnce sync.Once
)

// Default returns the process-wide gate over the built-in lexicon.
func Default() *Gate {
	defaultGateOnce.Do(func() {
		defaultGate = New()
	})
	return defaultGate
}

// ContainsHighRisk reports whether action matches the built-in lexicon.
func ContainsHighRisk(action string) bool {
	return Default().ContainsHighRisk(action)
}

// Terms returns a copy of the active lexicon.
func (g *Gate) Terms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.terms...)
}

func (g *Gate) setTerms(terms []string) {
	g.mu.Lock()
	g.terms = terms
	g.mu.Unlock()
}

// MatchedTerms returns the lexicon terms found in action, in lexicon order.
func (g *Gate) MatchedTerms(action string) []string {
	lower := strings.ToLower(action)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var matched []string
	for _, t := range g.terms {
		if strings.Contains(lower, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

// ContainsHighRisk reports whether action contains any lexicon term.
func (g *Gate) ContainsHighRisk(action string) bool {
	return len(g.MatchedTerms(action)) > 0
}

// RequiresConfirmation reports whether action must halt for human sign-off.
//
// It is true when the text contains a high-risk term, or when rec is owned
// by the AI at USER tier or above. A nil rec is judged on text alone.
func (g *Gate) RequiresConfirmation(action string, rec *ledger.Record) bool {
	if g.ContainsHighRisk(action) {
		return true
	}
	return rec != nil && rec.IsMine && rec.Tier >= ledger.TierUser
}

// Reason describes why RequiresConfirmation returned true for action and
// rec, or "" if it did not.
func (g *Gate) Reason(action string, rec *ledger.Record) string {
	var parts []string
	if matched := g.MatchedTerms(action); len(matched) > 0 {
		parts = append(parts, "high-risk terms: "+strings.Join(matched, ", "))
	}
	if rec != nil && rec.IsMine && rec.Tier >= ledger.TierUser {
		parts = append(parts, fmt.Sprintf("AI-initiated at %s tier", rec.Tier))
	}
	return strings.Join(parts, "; ")
}

// ConfirmationRequest is handed to a human for approval.
type ConfirmationRequest struct {
	Status    string `json:"status"`
	Action    string `json:"action"`
	GenesisID string `json:"genesis_id"`
	Reason    string `json:"reason"`
	Prompt    string `json:"prompt"`
}

// FormatConfirmationRequest builds the confirmation message for action.
// It does not modify rec. A nil rec yields an empty GenesisID and an
// "unknown" origin.
func FormatConfirmationRequest(action string, rec *ledger.Record, reason string) ConfirmationRequest {
	id, origin := "", "unknown"
	if rec != nil {
		id, origin = rec.ID, rec.Initiator
	}

	var b strings.Builder
	b.WriteString("⚠️ This action requires your confirmation:\n\n")
	fmt.Fprintf(&b, "Action: %s\n", action)
	fmt.Fprintf(&b, "Reason: %s\n", reason)
	fmt.Fprintf(&b, "Origin: %s\n\n", origin)
	b.WriteString("Do you approve? (yes/no)")

	return ConfirmationRequest{
		Status:    StatusConfirmationRequired,
		Action:    action,
		GenesisID: id,
		Reason:    reason,
		Prompt:    b.String(),
	}
}

// IsAffirmative reports whether a free-text reply approves. Only "yes" and
// "y" (trimmed, any case) approve; everything else rejects.
func IsAffirmative(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes", "y":
		return true
	}
	return false
}

// extendDefaults returns the built-in terms followed by any new terms.
func extendDefaults(terms []string) []string {
	out := DefaultTerms()
	seen := make(map[string]bool, len(out)+len(terms))
	for _, t := range out {
		seen[t] = true
	}
	for _, t := range normalize(terms) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func normalize(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
