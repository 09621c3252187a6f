// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by stores and lookups for unknown genesis ids.
var ErrNotFound = errors.New("genesis not found")

// ErrIndexUpdate is returned when a snapshot reached the journal but the
// current-state index could not be updated. The change is durable: the
// next Open replays it into the index.
var ErrIndexUpdate = errors.New("genesis journaled but index update failed")

// Tier classifies how far the initiator of an action sits from core
// system trust. Tiers are ordered: SYSTEM < DEVELOPER < USER < AI.
type Tier int

const (
	// TierSystem is core system behavior.
	TierSystem Tier = iota

	// TierDeveloper is developer-defined rules.
	TierDeveloper

	// TierUser is a user request.
	TierUser

	// TierAI is an action initiated by the AI itself.
	TierAI
)

var tierNames = [...]string{"SYSTEM", "DEVELOPER", "USER", "AI"}

// String returns the upper-case tier name, or "UNKNOWN".
func (t Tier) String() string {
	if t < TierSystem || t > TierAI {
		return "UNKNOWN"
	}
	return tierNames[t]
}

// Valid reports whether t is one of the four defined tiers.
func (t Tier) Valid() bool {
	return t >= TierSystem && t <= TierAI
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierUser, fmt.Errorf("unknown responsibility tier %q", s)
}

// MarshalText encodes the tier by name for JSON and YAML.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid responsibility tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Record is the provenance record ("genesis") of a single action.
//
// Everything except Confirmed and ConfirmationReason is fixed at creation;
// ChildrenIDs only grows as children are created.
type Record struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	Initiator          string    `json:"initiator"`
	Tier               Tier      `json:"tier"`
	OriginalRequest    string    `json:"original_request"`
	ParentID           string    `json:"parent_id"`
	ChildrenIDs        []string  `json:"children_ids"`
	IsMine             bool      `json:"is_mine"`
	Confirmed          bool      `json:"confirmed"`
	ConfirmationReason *string   `json:"confirmation_reason"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ChildrenIDs = append([]string(nil), r.ChildrenIDs...)
	if r.ConfirmationReason != nil {
		reason := *r.ConfirmationReason
		c.ConfirmationReason = &reason
	}
	return &c
}

// Reason returns the confirmation reason, or "" if unconfirmed.
func (r *Record) Reason() string {
	if r == nil || r.ConfirmationReason == nil {
		return ""
	}
	return *r.ConfirmationReason
}

func (r *Record) hasChild(id string) bool {
	for _, c := range r.ChildrenIDs {
		if c == id {
			return true
		}
	}
	return false
}

// CreateRequest carries the inputs of Ledger.Create.
type CreateRequest struct {
	// Initiator is a free-text, caller-trusted identifier.
	Initiator string

	// Request is the original request text.
	Request string

	// Tier is the responsibility tier. The zero value is TierSystem, so
	// callers normally set it explicitly; NewCreateRequest defaults to USER.
	Tier Tier

	// ParentID links the new record under an existing one. Optional.
	ParentID string

	// IsMine marks the action as owned by the AI.
	IsMine bool
}

// NewCreateRequest returns a request with the USER tier default.
func NewCreateRequest(initiator, request string) CreateRequest {
	return CreateRequest{Initiator: initiator, Request: request, Tier: TierUser}
}
