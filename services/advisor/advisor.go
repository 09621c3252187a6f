// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package advisor implements council.Advisor on top of a language model.
//
// # Description
//
// LLMAdvisor frames the action for one perspective, asks the model for a
// JSON opinion, and parses the reply strictly: every field must be present
// with the right type or the reply is rejected with
// council.ErrMalformedOpinion. Markdown code fences around the object are
// tolerated.
//
// Scripted is a deterministic stand-in for tests and offline runs.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/llm"
)

var tracer = otel.Tracer("conscience.advisor")

// LLMAdvisor asks a language model for each perspective's opinion.
type LLMAdvisor struct {
	client llm.LLMClient
	params llm.GenerationParams
	logger *slog.Logger
}

// Option configures an LLMAdvisor.
type Option func(*LLMAdvisor)

// WithParams sets the generation parameters for every advisor call.
func WithParams(params llm.GenerationParams) Option {
	return func(a *LLMAdvisor) { a.params = params }
}

// WithLogger sets the advisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *LLMAdvisor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewLLMAdvisor creates an advisor backed by client.
func NewLLMAdvisor(client llm.LLMClient, opts ...Option) *LLMAdvisor {
	temp := float32(0.2)
	a := &LLMAdvisor{
		client: client,
		params: llm.GenerationParams{Temperature: &temp},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Advise implements council.Advisor.
func (a *LLMAdvisor) Advise(ctx context.Context, p council.Perspective, action string, actionContext map[string]any) (council.Opinion, error) {
	ctx, span := tracer.Start(ctx, "LLMAdvisor.Advise")
	defer span.End()
	span.SetAttributes(attribute.String("perspective", string(p)))

	prompt, err := BuildPrompt(p, action, actionContext)
	if err != nil {
		return council.Opinion{}, err
	}

	reply, err := a.client.Generate(ctx, prompt, a.params)
	if err != nil {
		span.RecordError(err)
		return council.Opinion{}, fmt.Errorf("advisor: generate: %w", err)
	}

	opinion, err := ParseOpinion(reply)
	if err != nil {
		span.RecordError(err)
		a.logger.Warn("advisor reply rejected",
			"perspective", p,
			"error", err,
			"reply_length", len(reply),
		)
		return council.Opinion{}, err
	}
	return opinion, nil
}

// rawOpinion detects missing fields; every field is required.
type rawOpinion struct {
	Stance     *string   `json:"stance"`
	Concerns   *[]string `json:"concerns"`
	Approval   *bool     `json:"approval"`
	Confidence *float64  `json:"confidence"`
}

// ParseOpinion decodes a model reply into an opinion.
//
// The reply may be wrapped in a ``` or ```json fence. Any missing field,
// wrongly typed value, or failed validation returns an error wrapping
// council.ErrMalformedOpinion.
func ParseOpinion(reply string) (council.Opinion, error) {
	body := stripFence(reply)

	var raw rawOpinion
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return council.Opinion{}, fmt.Errorf("%w: %v", council.ErrMalformedOpinion, err)
	}

	var missing []string
	if raw.Stance == nil {
		missing = append(missing, "stance")
	}
	if raw.Concerns == nil {
		missing = append(missing, "concerns")
	}
	if raw.Approval == nil {
		missing = append(missing, "approval")
	}
	if raw.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return council.Opinion{}, fmt.Errorf("%w: missing %s", council.ErrMalformedOpinion, strings.Join(missing, ", "))
	}

	opinion := council.Opinion{
		Stance:     *raw.Stance,
		Concerns:   *raw.Concerns,
		Approval:   *raw.Approval,
		Confidence: *raw.Confidence,
	}
	if opinion.Concerns == nil {
		opinion.Concerns = []string{}
	}
	if err := opinion.Validate(); err != nil {
		return council.Opinion{}, err
	}
	return opinion, nil
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
