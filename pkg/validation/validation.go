// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that arrive from users before they
// reach the ledger, its journal or its log lines.
//
// Genesis ids and initiator names are copied into URL paths, badger keys and
// structured logs, so both are restricted to a small printable alphabet.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxInitiatorLength bounds initiator names.
const MaxInitiatorLength = 128

// InitiatorRules is the validator/v10 tag for initiator names. Request
// structs carry the same rules in their binding tags.
const InitiatorRules = "required,max=128,printascii"

var validate = validator.New()

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid input")

// genesisIDPattern matches ids minted by the ledger (8 hex characters) and
// the longer ids some callers inject, but nothing containing separators.
var genesisIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidateGenesisID rejects empty ids, ids longer than 64 characters and ids
// containing anything besides letters, digits, '_' and '-'.
//
// Example:
//
//	if err := validation.ValidateGenesisID(c.Param("id")); err != nil {
//	    c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
//	    return
//	}
func ValidateGenesisID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: genesis id cannot be empty", ErrInvalid)
	}
	if !genesisIDPattern.MatchString(id) {
		return fmt.Errorf("%w: genesis id %q (must be 1-64 letters, digits, '_' or '-')", ErrInvalid, id)
	}
	return nil
}

// SanitizeGenesisID trims surrounding space and validates the result.
func SanitizeGenesisID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateGenesisID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateInitiator rejects blank initiators and anything outside
// InitiatorRules: at most MaxInitiatorLength printable ASCII characters.
// Newlines and other control characters would forge journal and log lines.
func ValidateInitiator(initiator string) error {
	if strings.TrimSpace(initiator) == "" {
		return fmt.Errorf("%w: initiator cannot be empty", ErrInvalid)
	}
	if err := validate.Var(initiator, InitiatorRules); err != nil {
		return fmt.Errorf("%w: initiator %q (must be at most %d printable ASCII characters)",
			ErrInvalid, initiator, MaxInitiatorLength)
	}
	return nil
}
