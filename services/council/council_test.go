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
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conscience/services/gate"
)

// =============================================================================
// Helpers
// =============================================================================

// scripted returns fixed opinions per perspective.
func scripted(opinions map[Perspective]Opinion) Advisor {
	return AdvisorFunc(func(_ context.Context, p Perspective, _ string, _ map[string]any) (Opinion, error) {
		op, ok := opinions[p]
		if !ok {
			return Opinion{}, errors.New("no script for " + string(p))
		}
		return op, nil
	})
}

func approve(conf float64, concerns ...string) Opinion {
	return Opinion{Stance: "proceed", Concerns: concerns, Approval: true, Confidence: conf}
}

func deny(conf float64, concerns ...string) Opinion {
	return Opinion{Stance: "do not proceed", Concerns: concerns, Approval: false, Confidence: conf}
}

func newTestCouncil(a Advisor, opts ...Option) *Council {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(a, opts...)
}

// =============================================================================
// Aggregation
// =============================================================================

func TestDeliberate_UnanimousApproval(t *testing.T) {
	c := newTestCouncil(scripted(map[Perspective]Opinion{
		Philosopher: approve(0.9),
		Engineer:    approve(0.8),
		Guardian:    approve(0.95),
	}))

	v, err := c.Deliberate(context.Background(), "Add a new utility function", map[string]any{"file": "helpers.py"})
	require.NoError(t, err)

	assert.True(t, v.Approved)
	assert.Equal(t, 1.0, v.ConsensusLevel)
	assert.InDelta(t, 1-0.8833333, v.UncertaintyLevel, 1e-6)
	assert.False(t, v.RequiresConfirmation)
	assert.NotEmpty(t, v.ID)
	assert.False(t, v.DeliberatedAt.IsZero())
	require.Len(t, v.Votes, 3)
	for i, p := range Panel {
		assert.Equal(t, p, v.Votes[i].Perspective)
	}
}

func TestDeliberate_SingleDissentVetoes(t *testing.T) {
	for _, dissenter := range Panel {
		t.Run(string(dissenter), func(t *testing.T) {
			opinions := map[Perspective]Opinion{
				Philosopher: approve(0.99),
				Engineer:    approve(0.99),
				Guardian:    approve(0.99),
			}
			opinions[dissenter] = deny(0.1)

			v, err := newTestCouncil(scripted(opinions)).Deliberate(context.Background(), "refactor module", nil)
			require.NoError(t, err)
			assert.False(t, v.Approved)
			assert.InDelta(t, 2.0/3.0, v.ConsensusLevel, 1e-9)
		})
	}
}

func TestDeliberate_ConfirmationRules(t *testing.T) {
	tests := []struct {
		name     string
		action   string
		guardian Opinion
		approved bool
		want     bool
	}{
		{
			name:     "guardian concerns force confirmation despite approval",
			action:   "rename a variable",
			guardian: approve(0.9, "might break callers"),
			approved: true,
			want:     true,
		},
		{
			name:     "guardian dissent forces confirmation",
			action:   "rename a variable",
			guardian: deny(0.9),
			approved: false,
			want:     true,
		},
		{
			name:     "high-risk lexicon forces confirmation",
			action:   "Delete all temporary files",
			guardian: approve(0.9),
			approved: true,
			want:     true,
		},
		{
			name:     "benign and unconcerned",
			action:   "rename a variable",
			guardian: approve(0.9),
			approved: true,
			want:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCouncil(scripted(map[Perspective]Opinion{
				Philosopher: approve(0.9),
				Engineer:    approve(0.9),
				Guardian:    tc.guardian,
			}))
			v, err := c.Deliberate(context.Background(), tc.action, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.approved, v.Approved)
			assert.Equal(t, tc.want, v.RequiresConfirmation)
		})
	}
}

func TestDeliberate_UsesConfiguredLexicon(t *testing.T) {
	c := newTestCouncil(scripted(map[Perspective]Opinion{
		Philosopher: approve(0.9),
		Engineer:    approve(0.9),
		Guardian:    approve(0.9),
	}), WithGate(gate.New(gate.WithTerms("deploy"))))

	v, err := c.Deliberate(context.Background(), "deploy to production", nil)
	require.NoError(t, err)
	assert.True(t, v.RequiresConfirmation)

	v, err = c.Deliberate(context.Background(), "delete the cache", nil)
	require.NoError(t, err)
	assert.True(t, v.RequiresConfirmation)

	v, err = c.Deliberate(context.Background(), "summarize the cache stats", nil)
	require.NoError(t, err)
	assert.False(t, v.RequiresConfirmation)
}

func TestDeliberate_FinalDecisionDigest(t *testing.T) {
	c := newTestCouncil(scripted(map[Perspective]Opinion{
		Philosopher: {Stance: "ethically fine", Approval: true, Confidence: 0.5},
		Engineer:    {Stance: "cheap to do", Approval: true, Confidence: 0.5},
		Guardian:    {Stance: "low harm", Approval: true, Confidence: 0.5},
	}))
	v, err := c.Deliberate(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "philosopher: ethically fine | engineer: cheap to do | guardian: low harm", v.FinalDecision)
}

func TestDeliberate_OrderIndependent(t *testing.T) {
	delays := map[Perspective]time.Duration{
		Philosopher: 30 * time.Millisecond,
		Engineer:    0,
		Guardian:    15 * time.Millisecond,
	}
	a := AdvisorFunc(func(ctx context.Context, p Perspective, _ string, _ map[string]any) (Opinion, error) {
		select {
		case <-time.After(delays[p]):
		case <-ctx.Done():
			return Opinion{}, ctx.Err()
		}
		return Opinion{Stance: string(p), Approval: true, Confidence: 1}, nil
	})

	v, err := newTestCouncil(a).Deliberate(context.Background(), "x", nil)
	require.NoError(t, err)
	for i, p := range Panel {
		assert.Equal(t, p, v.Votes[i].Perspective)
		assert.Equal(t, string(p), v.Votes[i].Stance)
	}
	assert.Equal(t, 0.0, v.UncertaintyLevel)
}

// =============================================================================
// Failure semantics
// =============================================================================

func TestDeliberate_MalformedOpinionFails(t *testing.T) {
	tests := []struct {
		name     string
		guardian Opinion
	}{
		{name: "missing stance", guardian: Opinion{Approval: true, Confidence: 0.5}},
		{name: "confidence above one", guardian: Opinion{Stance: "ok", Confidence: 1.5}},
		{name: "negative confidence", guardian: Opinion{Stance: "ok", Confidence: -0.1}},
		{name: "NaN confidence", guardian: Opinion{Stance: "ok", Confidence: math.NaN()}},
		{name: "blank concern", guardian: Opinion{Stance: "ok", Concerns: []string{""}, Confidence: 0.5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCouncil(scripted(map[Perspective]Opinion{
				Philosopher: approve(0.9),
				Engineer:    approve(0.9),
				Guardian:    tc.guardian,
			}))
			v, err := c.Deliberate(context.Background(), "x", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedOpinion)
			assert.Nil(t, v)
			assert.Empty(t, c.History())
		})
	}
}

func TestDeliberate_AdvisorErrorFails(t *testing.T) {
	boom := errors.New("advisor unavailable")
	a := AdvisorFunc(func(_ context.Context, p Perspective, _ string, _ map[string]any) (Opinion, error) {
		if p == Engineer {
			return Opinion{}, boom
		}
		return approve(0.9), nil
	})

	c := newTestCouncil(a)
	_, err := c.Deliberate(context.Background(), "x", nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "engineer")
	assert.Empty(t, c.History())
}

func TestDeliberate_CancelledContext(t *testing.T) {
	a := AdvisorFunc(func(ctx context.Context, _ Perspective, _ string, _ map[string]any) (Opinion, error) {
		<-ctx.Done()
		return Opinion{}, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCouncil(a).Deliberate(ctx, "x", nil)
	require.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// History
// =============================================================================

func TestHistory_AppendsAndCopies(t *testing.T) {
	c := newTestCouncil(scripted(map[Perspective]Opinion{
		Philosopher: approve(0.9),
		Engineer:    approve(0.9),
		Guardian:    approve(0.9, "watch logs"),
	}))

	first, err := c.Deliberate(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = c.Deliberate(context.Background(), "two", nil)
	require.NoError(t, err)

	h := c.History()
	require.Len(t, h, 2)
	assert.Equal(t, first.ID, h[0].ID)
	assert.Equal(t, "two", h[1].Action)

	h[0].Approved = false
	h[0].Votes[2].Concerns[0] = "tampered"
	again := c.History()
	assert.True(t, again[0].Approved)
	assert.Equal(t, "watch logs", again[0].Votes[2].Concerns[0])
}

func TestHistory_Limit(t *testing.T) {
	c := newTestCouncil(scripted(map[Perspective]Opinion{
		Philosopher: approve(0.9),
		Engineer:    approve(0.9),
		Guardian:    approve(0.9),
	}), WithHistoryLimit(2))

	for _, action := range []string{"a", "b", "c"} {
		_, err := c.Deliberate(context.Background(), action, nil)
		require.NoError(t, err)
	}

	h := c.History()
	require.Len(t, h, 2)
	assert.Equal(t, "b", h[0].Action)
	assert.Equal(t, "c", h[1].Action)
}

func TestDeliberate_Concurrent(t *testing.T) {
	c := newTestCouncil(scripted(map[Perspective]Opinion{
		Philosopher: approve(0.9),
		Engineer:    approve(0.9),
		Guardian:    approve(0.9),
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Deliberate(context.Background(), "parallel", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, c.History(), 20)
}

func TestParsePerspective(t *testing.T) {
	p, err := ParsePerspective("guardian")
	require.NoError(t, err)
	assert.Equal(t, Guardian, p)

	_, err = ParsePerspective("jester")
	assert.Error(t, err)
}
