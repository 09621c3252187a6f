// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/AleutianAI/conscience/services/gate"
)

// Confirmer asks a human to approve an action.
//
// Confirm returns the decision and an optional note recorded as the
// confirmation reason. An error aborts the pipeline run.
type Confirmer interface {
	Confirm(ctx context.Context, req gate.ConfirmationRequest) (approved bool, note string, err error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, req gate.ConfirmationRequest) (bool, string, error)

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm(ctx context.Context, req gate.ConfirmationRequest) (bool, string, error) {
	return f(ctx, req)
}

// DenyAll declines every request.
type DenyAll struct{}

// Confirm implements Confirmer.
func (DenyAll) Confirm(context.Context, gate.ConfirmationRequest) (bool, string, error) {
	return false, "", nil
}

// ApproveAll approves every request with a fixed note.
type ApproveAll struct {
	Note string
}

// Confirm implements Confirmer.
func (a ApproveAll) Confirm(context.Context, gate.ConfirmationRequest) (bool, string, error) {
	return true, a.Note, nil
}

// PromptConfirmer writes the prompt to out and reads a one-line reply from
// in. Only "yes" or "y" approves.
type PromptConfirmer struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	source string
}

// NewPromptConfirmer creates a line-based confirmer. source names who
// approved in the ledger (for example "cli user").
func NewPromptConfirmer(in io.Reader, out io.Writer, source string) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out, source: source}
}

// Confirm implements Confirmer. End of input declines.
func (c *PromptConfirmer) Confirm(ctx context.Context, req gate.ConfirmationRequest) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "\n%s\n> ", req.Prompt); err != nil {
		return false, "", fmt.Errorf("write confirmation prompt: %w", err)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, "", fmt.Errorf("read confirmation reply: %w", err)
	}
	if !gate.IsAffirmative(line) {
		return false, "", nil
	}
	return true, fmt.Sprintf("approved by %s: %s", c.source, strings.TrimSpace(req.Reason)), nil
}
