// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package textnorm canonicalizes user-supplied identity strings.
//
// # Usage
//
// Emails are compared case-insensitively, so every email is lowercased before it
// is stored or looked up. Display names are trimmed and NFC-normalized so that
// visually identical names share one byte representation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Email returns the canonical form of an email address.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFC.
// 3. Lowercases rune by rune, matching the LOWER(email) index.
//
// Full case folding is not used: it rewrites the mailbox itself
// ("Straße" would become "strasse", a different address).
func Email(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	return cases.Lower(language.Und).String(s)
}

// Name returns a trimmed, NFC-normalized display name with control
// characters removed and inner whitespace runs collapsed.
func Name(s string) string {
	t := transform.Chain(norm.NFC, transform.RemoveFunc(unicode.IsControl))
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	return strings.Join(strings.Fields(result), " ")
}
