// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package advisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/gate"
)

// Call records one Advise invocation on a Scripted advisor.
type Call struct {
	Perspective council.Perspective
	Action      string
}

// Scripted returns fixed opinions per perspective.
//
// Thread Safety: Safe for concurrent use.
type Scripted struct {
	mu       sync.Mutex
	opinions map[council.Perspective]council.Opinion
	errs     map[council.Perspective]error
	calls    []Call
}

// NewScripted creates a scripted advisor. A perspective with no opinion
// and no error fails with an error naming it.
func NewScripted(opinions map[council.Perspective]council.Opinion) *Scripted {
	s := &Scripted{
		opinions: make(map[council.Perspective]council.Opinion, len(opinions)),
		errs:     make(map[council.Perspective]error),
	}
	for p, o := range opinions {
		s.opinions[p] = o
	}
	return s
}

// Unanimous returns a scripted advisor where every perspective gives op.
func Unanimous(op council.Opinion) *Scripted {
	opinions := make(map[council.Perspective]council.Opinion, len(council.Panel))
	for _, p := range council.Panel {
		opinions[p] = op
	}
	return NewScripted(opinions)
}

// Set replaces the opinion for p.
func (s *Scripted) Set(p council.Perspective, op council.Opinion) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opinions[p] = op
	delete(s.errs, p)
	return s
}

// Fail makes p return err.
func (s *Scripted) Fail(p council.Perspective, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[p] = err
	return s
}

// Advise implements council.Advisor.
func (s *Scripted) Advise(ctx context.Context, p council.Perspective, action string, _ map[string]any) (council.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return council.Opinion{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Perspective: p, Action: action})

	if err, ok := s.errs[p]; ok {
		return council.Opinion{}, err
	}
	op, ok := s.opinions[p]
	if !ok {
		return council.Opinion{}, fmt.Errorf("advisor: no scripted opinion for %s", p)
	}
	op.Concerns = append([]string(nil), op.Concerns...)
	return op, nil
}

// Calls returns the recorded invocations.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Offline is the advisor used when no model is configured. Every
// perspective approves at confidence 0.5; the guardian raises a concern
// for actions matching the gate's high-risk lexicon.
type Offline struct {
	Gate *gate.Gate
}

// Advise implements council.Advisor.
func (o Offline) Advise(ctx context.Context, p council.Perspective, action string, _ map[string]any) (council.Opinion, error) {
	if err := ctx.Err(); err != nil {
		return council.Opinion{}, err
	}
	g := o.Gate
	if g == nil {
		g = gate.Default()
	}

	op := council.Opinion{
		Stance:     "no model consulted; deferring to human judgement",
		Concerns:   []string{},
		Approval:   true,
		Confidence: 0.5,
	}
	if p == council.Guardian {
		if matched := g.MatchedTerms(action); len(matched) > 0 {
			op.Concerns = append(op.Concerns, fmt.Sprintf("high-risk terms present: %v", matched))
		}
	}
	return op, nil
}
