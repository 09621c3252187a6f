// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how rich CLI output is.
type Mode string

const (
	// ModeStyled uses colors, icons and boxes.
	ModeStyled Mode = "styled"

	// ModePlain outputs plain text suitable for scripting and parsing.
	ModePlain Mode = "plain"
)

// ParseMode converts a string to a Mode. Unknown values are styled.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "machine", "quiet", "q":
		return ModePlain
	default:
		return ModeStyled
	}
}

// DetectMode picks the output mode from CONSCIENCE_OUTPUT, falling back to
// plain when f is not a terminal.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv("CONSCIENCE_OUTPUT"); env != "" {
		return ParseMode(env)
	}
	if !IsTerminal(f) {
		return ModePlain
	}
	return ModeStyled
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
