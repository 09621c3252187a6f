// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGenesisID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"ledger id", "3f2a9c1e", false},
		{"single char", "a", false},
		{"with separators", "task_01-b", false},
		{"max length", strings.Repeat("a", 64), false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
		{"path traversal", "../etc", true},
		{"slash", "abc/def", true},
		{"newline", "abc\ndef", true},
		{"leading dash", "-abc", true},
		{"space", "abc def", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGenesisID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeGenesisID(t *testing.T) {
	id, err := SanitizeGenesisID("  3f2a9c1e\n")
	require.NoError(t, err)
	assert.Equal(t, "3f2a9c1e", id)

	_, err = SanitizeGenesisID("   ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateInitiator(t *testing.T) {
	tests := []struct {
		name      string
		initiator string
		wantErr   bool
	}{
		{"plain", "demo_user", false},
		{"spaces and punctuation", "ops team (on-call) #2", false},
		{"max length", strings.Repeat("x", MaxInitiatorLength), false},

		{"empty", "", true},
		{"blank", "  ", true},
		{"newline", "user\nforged line", true},
		{"tab", "user\tname", true},
		{"escape", "user\x1b[31m", true},
		{"non ascii", "Zoë from ops", true},
		{"too long", strings.Repeat("x", MaxInitiatorLength+1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInitiator(tt.initiator)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
