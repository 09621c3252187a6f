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
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/llm"
)

// fakeLLM answers based on which role framing appears in the prompt.
type fakeLLM struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	for role, reply := range f.replies {
		if strings.Contains(prompt, "You are the "+role) {
			return reply, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseOpinion(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    council.Opinion
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"stance":"fine","concerns":["cost"],"approval":true,"confidence":0.8}`,
			want:  council.Opinion{Stance: "fine", Concerns: []string{"cost"}, Approval: true, Confidence: 0.8},
		},
		{
			name:  "json fence",
			reply: "```json\n{\"stance\":\"no\",\"concerns\":[],\"approval\":false,\"confidence\":1}\n```",
			want:  council.Opinion{Stance: "no", Concerns: []string{}, Approval: false, Confidence: 1},
		},
		{
			name:  "bare fence with whitespace",
			reply: "  ```\n{\"stance\":\"ok\",\"concerns\":[],\"approval\":true,\"confidence\":0}\n```  ",
			want:  council.Opinion{Stance: "ok", Concerns: []string{}, Approval: true, Confidence: 0},
		},
		{name: "missing approval", reply: `{"stance":"x","concerns":[],"confidence":0.5}`, wantErr: true},
		{name: "missing concerns", reply: `{"stance":"x","approval":true,"confidence":0.5}`, wantErr: true},
		{name: "approval as string", reply: `{"stance":"x","concerns":[],"approval":"yes","confidence":0.5}`, wantErr: true},
		{name: "confidence out of range", reply: `{"stance":"x","concerns":[],"approval":true,"confidence":7}`, wantErr: true},
		{name: "empty stance", reply: `{"stance":"","concerns":[],"approval":true,"confidence":0.5}`, wantErr: true},
		{name: "prose", reply: `I think this is fine.`, wantErr: true},
		{name: "empty", reply: ``, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOpinion(tc.reply)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, council.ErrMalformedOpinion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(council.Guardian, "Delete all temporary files", map[string]any{"dir": "/tmp"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "You are the Guardian on the Council.")
	assert.Contains(t, prompt, "potential harm, safeguards, failure modes")
	assert.Contains(t, prompt, "Action: Delete all temporary files")
	assert.Contains(t, prompt, `Context: {"dir":"/tmp"}`)
	assert.Contains(t, prompt, `"confidence"`)

	prompt, err = BuildPrompt(council.Engineer, "x", nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Context: {}")

	_, err = BuildPrompt(council.Perspective("jester"), "x", nil)
	assert.Error(t, err)
}

func TestLLMAdvisor_WithCouncil(t *testing.T) {
	fake := &fakeLLM{replies: map[string]string{
		"Philosopher": `{"stance":"ethically neutral","concerns":[],"approval":true,"confidence":0.9}`,
		"Engineer":    "```json\n{\"stance\":\"trivial change\",\"concerns\":[],\"approval\":true,\"confidence\":0.8}\n```",
		"Guardian":    `{"stance":"low risk","concerns":["no tests"],"approval":true,"confidence":0.95}`,
	}}

	c := council.New(NewLLMAdvisor(fake, WithLogger(quietLogger())), council.WithLogger(quietLogger()))
	v, err := c.Deliberate(context.Background(), "Add a helper", map[string]any{"file": "helpers.py"})
	require.NoError(t, err)

	assert.True(t, v.Approved)
	assert.True(t, v.RequiresConfirmation)
	assert.InDelta(t, 0.11667, v.UncertaintyLevel, 1e-4)
	assert.Equal(t, "philosopher: ethically neutral | engineer: trivial change | guardian: low risk", v.FinalDecision)
	assert.Len(t, fake.prompts, 3)
}

func TestLLMAdvisor_MalformedReplyFailsDeliberation(t *testing.T) {
	fake := &fakeLLM{replies: map[string]string{
		"Philosopher": `{"stance":"ok","concerns":[],"approval":true,"confidence":0.9}`,
		"Engineer":    `{"stance":"ok","concerns":[],"approval":true}`,
		"Guardian":    `{"stance":"ok","concerns":[],"approval":true,"confidence":0.9}`,
	}}

	c := council.New(NewLLMAdvisor(fake, WithLogger(quietLogger())), council.WithLogger(quietLogger()))
	_, err := c.Deliberate(context.Background(), "x", nil)
	require.ErrorIs(t, err, council.ErrMalformedOpinion)
	assert.Empty(t, c.History())
}

func TestLLMAdvisor_GenerateError(t *testing.T) {
	boom := errors.New("connection refused")
	a := NewLLMAdvisor(&fakeLLM{err: boom}, WithLogger(quietLogger()))
	_, err := a.Advise(context.Background(), council.Philosopher, "x", nil)
	require.ErrorIs(t, err, boom)
}

func TestScripted(t *testing.T) {
	s := Unanimous(council.Opinion{Stance: "yes", Approval: true, Confidence: 1})
	s.Fail(council.Engineer, errors.New("down"))

	_, err := s.Advise(context.Background(), council.Engineer, "x", nil)
	require.Error(t, err)

	s.Set(council.Engineer, council.Opinion{Stance: "fine", Approval: true, Confidence: 0.5})
	op, err := s.Advise(context.Background(), council.Engineer, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", op.Stance)

	_, err = NewScripted(nil).Advise(context.Background(), council.Guardian, "x", nil)
	require.Error(t, err)

	assert.Len(t, s.Calls(), 2)
}

func TestOffline(t *testing.T) {
	c := council.New(Offline{}, council.WithLogger(quietLogger()))

	v, err := c.Deliberate(context.Background(), "summarize notes", nil)
	require.NoError(t, err)
	assert.True(t, v.Approved)
	assert.False(t, v.RequiresConfirmation)
	assert.InDelta(t, 0.5, v.UncertaintyLevel, 1e-9)

	v, err = c.Deliberate(context.Background(), "remove the backups", nil)
	require.NoError(t, err)
	guardian, ok := v.Vote(council.Guardian)
	require.True(t, ok)
	assert.NotEmpty(t, guardian.Concerns)
	assert.True(t, v.RequiresConfirmation)
}
