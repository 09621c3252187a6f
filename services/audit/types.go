// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import "fmt"

// Layer is the semantic abstraction layer a claim is made at.
type Layer string

const (
	// LayerOperational is the raw operational-fact layer.
	LayerOperational Layer = "operational"

	// LayerSemantic is the mid-level semantic-model layer. Inference is
	// only licensed here.
	LayerSemantic Layer = "semantic"

	// LayerMetaphor is the abstract/metaphor layer.
	LayerMetaphor Layer = "metaphor"
)

// ParseLayer parses a layer name.
func ParseLayer(s string) (Layer, error) {
	switch l := Layer(s); l {
	case LayerOperational, LayerSemantic, LayerMetaphor:
		return l, nil
	}
	return "", fmt.Errorf("unknown audit layer %q", s)
}

// Result is the outcome of one check or of the whole audit.
type Result string

const (
	ResultPass      Result = "pass"
	ResultFlag      Result = "flag"
	ResultReject    Result = "reject"
	ResultIntercept Result = "intercept"
)

// severity orders results for finalization: REJECT > INTERCEPT > FLAG > PASS.
func (r Result) severity() int {
	switch r {
	case ResultReject:
		return 3
	case ResultIntercept:
		return 2
	case ResultFlag:
		return 1
	}
	return 0
}

// Blocking reports whether the result stops delivery (reject or intercept).
func (r Result) Blocking() bool {
	return r == ResultReject || r == ResultIntercept
}

// BasisInference is the action basis subject to the attribute check.
const BasisInference = "Inference"

// Reason strings attached to non-pass audits.
const (
	ReasonUngrounded          = "ungrounded output"
	ReasonFlattery            = "blocked ungrounded flattery"
	ReasonCrossLayerInference = "cross-layer inference"
)

// Markers lists the discourse-marker patterns found in an action.
type Markers struct {
	Pleasing []string `json:"pleasing"`
	Honest   []string `json:"honest"`
}

// Audit is the result of one benevolence audit.
type Audit struct {
	AttributeCheck   Result `json:"attribute_check"`
	ShadowCheck      Result `json:"shadow_check"`
	BenevolenceCheck Result `json:"benevolence_check"`

	FinalResult Result `json:"final_result"`
	// ErrorLog explains a non-pass FinalResult; empty on pass.
	ErrorLog string `json:"error_log,omitempty"`

	ContextScore float64 `json:"context_score"`
	PhraseScore  float64 `json:"phrase_score"`
	TensionScore float64 `json:"tension_score"`

	Markers Markers `json:"markers"`
}

// Passed reports whether the audit's final result is PASS.
func (a *Audit) Passed() bool {
	return a.FinalResult == ResultPass
}
