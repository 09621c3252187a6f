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

import (
	"math"
	"regexp"
	"strings"
)

const (
	// groundingThreshold is the minimum action/context word overlap.
	groundingThreshold = 0.3

	// neutralScore is reported when a signal is absent.
	neutralScore = 0.5

	// flatteryThreshold is the pleasing-marker count that intercepts an
	// action carrying no honesty markers.
	flatteryThreshold = 2
)

// PleasingPatterns are phrases that signal telling the user what they want
// to hear.
var PleasingPatterns = []string{
	"absolutely",
	"definitely",
	"of course",
	"certainly",
	"no problem",
	"sure thing",
	"I'd be happy to",
	"Great question",
}

// HonestPatterns are phrases that signal stated uncertainty.
var HonestPatterns = []string{
	"I'm not sure",
	"I don't know",
	"might be",
	"could be",
	"uncertain",
	"approximately",
	"based on limited",
}

// wordPattern extracts word tokens, keeping inner apostrophes ("i'd").
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}\p{N}]+)*`)

// marker is a compiled discourse-marker pattern.
type marker struct {
	phrase string
	match  *regexp.Regexp
	// strip matches the phrase plus any word characters attached to it,
	// so "uncertain" removes all of "uncertainty".
	strip *regexp.Regexp
}

func compileMarkers(phrases []string) []marker {
	out := make([]marker, len(phrases))
	for i, p := range phrases {
		q := regexp.QuoteMeta(strings.ToLower(p))
		out[i] = marker{
			phrase: p,
			match:  regexp.MustCompile(q),
			strip:  regexp.MustCompile(`[\p{L}\p{N}']*` + q + `[\p{L}\p{N}']*`),
		}
	}
	return out
}

var (
	pleasingMarkers = compileMarkers(PleasingPatterns)
	honestMarkers   = compileMarkers(HonestPatterns)
)

// normalizeText case-folds and maps typographic apostrophes to ASCII.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

// tokenize returns the set of word tokens in already-normalized text.
func tokenize(text string) map[string]struct{} {
	words := wordPattern.FindAllString(text, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// matchMarkers returns the phrases of markers found in normalized text.
func matchMarkers(text string, markers []marker) []string {
	var found []string
	for _, m := range markers {
		if m.match.MatchString(text) {
			found = append(found, m.phrase)
		}
	}
	return found
}

// stripMarkers removes every discourse marker from normalized text.
func stripMarkers(text string) string {
	for _, set := range [][]marker{pleasingMarkers, honestMarkers} {
		for _, m := range set {
			text = m.strip.ReplaceAllString(text, " ")
		}
	}
	return text
}

// checkAttribute flags inference claimed outside the semantic layer.
func checkAttribute(basis string, layer Layer) Result {
	if strings.EqualFold(basis, BasisInference) && layer != LayerSemantic {
		return ResultFlag
	}
	return ResultPass
}

// checkShadow scores how much of action is grounded in fragments.
//
// Overlap is |action words ∩ context words| / |action words|, where action
// words exclude discourse markers. No fragments scores neutral and passes;
// an action with no words scores zero and passes.
func checkShadow(action string, fragments []string) (Result, float64) {
	if len(fragments) == 0 {
		return ResultPass, neutralScore
	}

	actionWords := tokenize(stripMarkers(normalizeText(action)))
	if len(actionWords) == 0 {
		return ResultPass, 0
	}

	contextWords := make(map[string]struct{})
	for _, f := range fragments {
		for w := range tokenize(normalizeText(f)) {
			contextWords[w] = struct{}{}
		}
	}

	shared := 0
	for w := range actionWords {
		if _, ok := contextWords[w]; ok {
			shared++
		}
	}
	overlap := float64(shared) / float64(len(actionWords))
	if overlap < groundingThreshold {
		return ResultReject, overlap
	}
	return ResultPass, overlap
}

// checkBenevolence weighs honesty markers against pleasing markers.
func checkBenevolence(action string) (Result, float64, Markers) {
	text := normalizeText(action)
	found := Markers{
		Pleasing: matchMarkers(text, pleasingMarkers),
		Honest:   matchMarkers(text, honestMarkers),
	}

	pleasing, honest := len(found.Pleasing), len(found.Honest)
	score := neutralScore
	if total := pleasing + honest; total > 0 {
		score = float64(honest) / float64(total)
	}

	if pleasing >= flatteryThreshold && honest == 0 {
		return ResultIntercept, score, found
	}
	return ResultPass, score, found
}

// tension is 1 - sqrt(context × phrase): high when grounding and honesty
// signals are jointly weak.
func tension(contextScore, phraseScore float64) float64 {
	return 1 - math.Sqrt(contextScore*phraseScore)
}
