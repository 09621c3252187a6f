// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package council

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedOpinion is returned when an advisor's reply is missing a
// required field or carries an out-of-range value. A malformed opinion
// fails the whole deliberation; it is never counted as a vote.
var ErrMalformedOpinion = errors.New("malformed advisor opinion")

// Perspective is one seat on the council panel.
type Perspective string

const (
	// Philosopher weighs ethical implications, values and long-term
	// consequences.
	Philosopher Perspective = "philosopher"

	// Engineer weighs feasibility, risks, costs and alternatives.
	Engineer Perspective = "engineer"

	// Guardian weighs potential harm, safeguards and failure modes. Its
	// vote alone can force human confirmation.
	Guardian Perspective = "guardian"
)

// Panel is the fixed, ordered council panel. The unanimity and guardian
// rules assume exactly this panel.
var Panel = [...]Perspective{Philosopher, Engineer, Guardian}

// Valid reports whether p is a panel perspective.
func (p Perspective) Valid() bool {
	for _, q := range Panel {
		if p == q {
			return true
		}
	}
	return false
}

// ParsePerspective parses a perspective name.
func ParsePerspective(s string) (Perspective, error) {
	p := Perspective(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown council perspective %q", s)
	}
	return p, nil
}

// Opinion is one advisor's structured reply.
type Opinion struct {
	Stance     string   `json:"stance" validate:"required"`
	Concerns   []string `json:"concerns" validate:"dive,required"`
	Approval   bool     `json:"approval"`
	Confidence float64  `json:"confidence" validate:"gte=0,lte=1"`
}

// opinionValidate checks advisor opinions before they become votes.
var opinionValidate = validator.New()

// Validate checks that the opinion has a stance, non-blank concerns and a
// confidence in [0, 1]. Failures wrap ErrMalformedOpinion.
func (o Opinion) Validate() error {
	if err := opinionValidate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOpinion, err)
	}
	return nil
}

// Advisor produces one perspective's opinion on an action.
//
// Implementations may block on network I/O and must honour ctx. A returned
// error fails the deliberation; there are no retries.
type Advisor interface {
	Advise(ctx context.Context, perspective Perspective, action string, actionContext map[string]any) (Opinion, error)
}

// AdvisorFunc adapts a function to the Advisor interface.
type AdvisorFunc func(ctx context.Context, perspective Perspective, action string, actionContext map[string]any) (Opinion, error)

// Advise implements Advisor.
func (f AdvisorFunc) Advise(ctx context.Context, perspective Perspective, action string, actionContext map[string]any) (Opinion, error) {
	return f(ctx, perspective, action, actionContext)
}

// Vote is one perspective's opinion within a verdict.
type Vote struct {
	Perspective Perspective `json:"perspective"`
	Stance      string      `json:"stance"`
	Concerns    []string    `json:"concerns"`
	Approval    bool        `json:"approval"`
	Confidence  float64     `json:"confidence"`
}

// Verdict is the aggregated outcome of one deliberation.
//
// Votes are in panel order regardless of the order advisors replied in.
type Verdict struct {
	ID                   string    `json:"id"`
	Action               string    `json:"action"`
	Votes                []Vote    `json:"votes"`
	Approved             bool      `json:"approved"`
	ConsensusLevel       float64   `json:"consensus_level"`
	FinalDecision        string    `json:"final_decision"`
	UncertaintyLevel     float64   `json:"uncertainty_level"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	DeliberatedAt        time.Time `json:"deliberated_at"`
}

// Vote returns the vote cast by p, if any.
func (v *Verdict) Vote(p Perspective) (Vote, bool) {
	for _, vote := range v.Votes {
		if vote.Perspective == p {
			return vote, true
		}
	}
	return Vote{}, false
}

func (v *Verdict) clone() *Verdict {
	c := *v
	c.Votes = make([]Vote, len(v.Votes))
	for i, vote := range v.Votes {
		vote.Concerns = append([]string(nil), vote.Concerns...)
		c.Votes[i] = vote
	}
	return &c
}
