// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/conscience/pkg/ux"
	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/pipeline"
)

// cliSource names the approver recorded in confirmation reasons.
const cliSource = "cli user"

// huhConfirmer asks through an interactive huh form.
type huhConfirmer struct {
	printer *ux.Printer
}

// Confirm implements pipeline.Confirmer. Aborting the form (ctrl-c, esc)
// declines.
func (h huhConfirmer) Confirm(ctx context.Context, req gate.ConfirmationRequest) (bool, string, error) {
	renderConfirmation(h.printer, req)

	var approved bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Do you approve?").
			Description(req.Action).
			Affirmative("Yes").
			Negative("No").
			Value(&approved),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("confirmation form: %w", err)
	}
	if !approved {
		return false, "", nil
	}
	return true, fmt.Sprintf("approved by %s: %s", cliSource, req.Reason), nil
}

// selectConfirmer picks how the run command asks for approval: --yes
// approves everything, a terminal gets the huh form, anything else reads
// yes/no lines from in.
func selectConfirmer(yes bool, in io.Reader, out io.Writer, printer *ux.Printer) pipeline.Confirmer {
	if yes {
		return pipeline.ApproveAll{Note: "approved by " + cliSource + " with --yes"}
	}
	if f, ok := in.(*os.File); ok && ux.IsTerminal(f) && !printer.Plain() {
		return huhConfirmer{printer: printer}
	}
	return pipeline.NewPromptConfirmer(in, out, cliSource)
}
