// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output with lipgloss, degrading to plain text for
// pipes and scripts.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Conscience color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// boxWidth is the rendered width of boxes in styled mode.
const boxWidth = 72

// Printer writes styled or plain output to a writer.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a printer for w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Plain reports whether the printer emits unstyled text.
func (p *Printer) Plain() bool {
	return p.mode == ModePlain
}

// Title prints a styled title. Plain mode prints nothing.
func (p *Printer) Title(text string) {
	if p.Plain() {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.Plain() {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if p.Plain() {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.Plain() {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.Plain() {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Field is one labelled line inside a box.
type Field struct {
	Label string
	Value string
}

// Box prints fields in a rounded box under title. Plain mode prints
// "title" followed by "label: value" lines.
func (p *Printer) Box(title string, fields ...Field) {
	p.box(Styles.Box, Styles.Title, title, fields)
}

// WarningBox is Box with warning colors.
func (p *Printer) WarningBox(title string, fields ...Field) {
	p.box(Styles.WarningBox, Styles.Warning.Bold(true), title, fields)
}

// ErrorBox is Box with error colors.
func (p *Printer) ErrorBox(title string, fields ...Field) {
	p.box(Styles.ErrorBox, Styles.Error.Bold(true), title, fields)
}

func (p *Printer) box(frame, heading lipgloss.Style, title string, fields []Field) {
	if p.Plain() {
		fmt.Fprintln(p.w, title)
		for _, f := range fields {
			fmt.Fprintf(p.w, "  %s: %s\n", f.Label, f.Value)
		}
		return
	}

	lines := []string{heading.Render(title)}
	for _, f := range fields {
		lines = append(lines, Styles.Muted.Render(f.Label+":")+" "+f.Value)
	}
	fmt.Fprintln(p.w, frame.Width(boxWidth).Render(strings.Join(lines, "\n")))
}

// Bar renders ratio (0..1) as a fixed-width bar with a percentage.
func (p *Printer) Bar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	if p.Plain() {
		return fmt.Sprintf("%.0f%%", ratio*100)
	}
	filled := int(ratio * float64(width))
	bar := Styles.Success.Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, ratio*100)
}
