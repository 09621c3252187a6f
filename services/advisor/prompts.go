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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/conscience/services/council"
)

// framings holds the role prompt for each panel perspective.
var framings = map[council.Perspective]string{
	council.Philosopher: `You are the Philosopher on the Council.
Evaluate this action from an ethical and philosophical perspective.
Consider: moral implications, alignment with values, long-term consequences.`,

	council.Engineer: `You are the Engineer on the Council.
Evaluate this action from a technical and practical perspective.
Consider: feasibility, risks, costs, alternative approaches.`,

	council.Guardian: `You are the Guardian on the Council.
Evaluate this action from a safety and protection perspective.
Consider: potential harm, safeguards, failure modes.`,
}

const replyInstructions = `Respond with a single JSON object and nothing else:
{
  "stance": "your position on this action",
  "concerns": ["list", "of", "concerns"],
  "approval": true,
  "confidence": 0.0
}
"approval" is true or false. "confidence" is a number from 0.0 to 1.0.`

// Framing returns the role prompt for p.
func Framing(p council.Perspective) (string, error) {
	f, ok := framings[p]
	if !ok {
		return "", fmt.Errorf("advisor: no framing for perspective %q", p)
	}
	return f, nil
}

// BuildPrompt assembles the advisor prompt for one perspective.
func BuildPrompt(p council.Perspective, action string, actionContext map[string]any) (string, error) {
	framing, err := Framing(p)
	if err != nil {
		return "", err
	}
	if actionContext == nil {
		actionContext = map[string]any{}
	}
	ctxJSON, err := json.Marshal(actionContext)
	if err != nil {
		return "", fmt.Errorf("advisor: encode context: %w", err)
	}

	var b strings.Builder
	b.WriteString(framing)
	b.WriteString("\n\nAction: ")
	b.WriteString(action)
	b.WriteString("\nContext: ")
	b.Write(ctxJSON)
	b.WriteString("\n\n")
	b.WriteString(replyInstructions)
	return b.String(), nil
}
