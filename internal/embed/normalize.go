// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize cleans text for embedding generation: it strips a single
// trailing punctuation character if present, trims surrounding whitespace,
// and lower-cases the result. It is pure and must be applied identically at
// embed time and at any future re-embed so dedup keys stay stable.
func Normalize(text string) string {
	if r, size := utf8.DecodeLastRuneInString(text); size > 0 && isTrailingPunct(r) {
		text = text[:len(text)-size]
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// isTrailingPunct reports whether r counts as strippable trailing
// punctuation: anything that is not a letter, digit, underscore, or space.
func isTrailingPunct(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && !unicode.IsSpace(r)
}
