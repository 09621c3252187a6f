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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/conscience/pkg/ux"
	"github.com/AleutianAI/conscience/services/audit"
	"github.com/AleutianAI/conscience/services/council"
	"github.com/AleutianAI/conscience/services/gate"
	"github.com/AleutianAI/conscience/services/ledger"
	"github.com/AleutianAI/conscience/services/pipeline"
)

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func renderRecord(p *ux.Printer, rec *ledger.Record) {
	fields := []ux.Field{
		{Label: "Initiator", Value: rec.Initiator},
		{Label: "Tier", Value: rec.Tier.String()},
		{Label: "Request", Value: rec.OriginalRequest},
		{Label: "Created", Value: rec.Timestamp.Format(time.RFC3339)},
		{Label: "Parent", Value: orNone(rec.ParentID)},
		{Label: "Children", Value: orNone(strings.Join(rec.ChildrenIDs, ", "))},
		{Label: "AI-owned", Value: strconv.FormatBool(rec.IsMine)},
		{Label: "Confirmed", Value: strconv.FormatBool(rec.Confirmed)},
	}
	if rec.Confirmed {
		fields = append(fields, ux.Field{Label: "Reason", Value: rec.Reason()})
	}
	p.Box("Genesis "+rec.ID, fields...)
}

func renderChain(p *ux.Printer, chain []*ledger.Record) {
	if len(chain) == 0 {
		p.Warning("no responsibility chain found")
		return
	}
	p.Title(fmt.Sprintf("Responsibility chain (%d)", len(chain)))
	for i, rec := range chain {
		marker := string(ux.IconArrow)
		if rec.Confirmed {
			marker = string(ux.IconSuccess)
		}
		p.Info(fmt.Sprintf("%s%s %s [%s] %s: %s",
			strings.Repeat("  ", i), marker, rec.ID, rec.Tier, rec.Initiator, rec.OriginalRequest))
	}
}

func renderConfirmation(p *ux.Printer, req gate.ConfirmationRequest) {
	p.WarningBox("Confirmation required",
		ux.Field{Label: "Action", Value: req.Action},
		ux.Field{Label: "Reason", Value: req.Reason},
		ux.Field{Label: "Genesis", Value: orNone(req.GenesisID)},
	)
}

func renderVerdict(p *ux.Printer, v *council.Verdict) {
	fields := make([]ux.Field, 0, len(v.Votes)+4)
	for _, vote := range v.Votes {
		icon := ux.IconSuccess
		if !vote.Approval {
			icon = ux.IconError
		}
		value := fmt.Sprintf("%s %s (confidence %.2f)", icon, vote.Stance, vote.Confidence)
		if len(vote.Concerns) > 0 {
			value += "; concerns: " + strings.Join(vote.Concerns, "; ")
		}
		fields = append(fields, ux.Field{Label: string(vote.Perspective), Value: value})
	}
	fields = append(fields,
		ux.Field{Label: "Consensus", Value: p.Bar(v.ConsensusLevel, 20)},
		ux.Field{Label: "Uncertainty", Value: fmt.Sprintf("%.2f", v.UncertaintyLevel)},
		ux.Field{Label: "Needs confirmation", Value: strconv.FormatBool(v.RequiresConfirmation)},
	)

	if v.Approved {
		p.Box("Council approved", fields...)
	} else {
		p.ErrorBox("Council vetoed", fields...)
	}
}

func renderAudit(p *ux.Printer, a *audit.Audit) {
	fields := []ux.Field{
		{Label: "Attribute", Value: string(a.AttributeCheck)},
		{Label: "Shadow", Value: fmt.Sprintf("%s (context %.2f)", a.ShadowCheck, a.ContextScore)},
		{Label: "Benevolence", Value: fmt.Sprintf("%s (phrase %.2f)", a.BenevolenceCheck, a.PhraseScore)},
		{Label: "Tension", Value: fmt.Sprintf("%.2f", a.TensionScore)},
	}
	if len(a.Markers.Pleasing) > 0 {
		fields = append(fields, ux.Field{Label: "Pleasing markers", Value: strings.Join(a.Markers.Pleasing, ", ")})
	}
	if len(a.Markers.Honest) > 0 {
		fields = append(fields, ux.Field{Label: "Honest markers", Value: strings.Join(a.Markers.Honest, ", ")})
	}

	title := "Audit " + strings.ToUpper(string(a.FinalResult))
	switch {
	case a.FinalResult.Blocking():
		fields = append(fields, ux.Field{Label: "Reason", Value: a.ErrorLog})
		p.ErrorBox(title, fields...)
	case a.FinalResult == audit.ResultFlag:
		fields = append(fields, ux.Field{Label: "Reason", Value: a.ErrorLog})
		p.WarningBox(title, fields...)
	default:
		p.Box(title, fields...)
	}
}

func renderOutcome(p *ux.Printer, out *pipeline.Outcome) {
	if out.Verdict != nil {
		renderVerdict(p, out.Verdict)
	}
	if out.Audit != nil {
		renderAudit(p, out.Audit)
	}

	msg := fmt.Sprintf("%s (genesis %s)", out.Status, out.Genesis.ID)
	if out.Reason != "" {
		msg += ": " + out.Reason
	}
	switch out.Status {
	case pipeline.StatusApproved:
		p.Success(msg)
	case pipeline.StatusCancelled:
		p.Warning(msg)
	default:
		p.Error(msg)
	}
}
