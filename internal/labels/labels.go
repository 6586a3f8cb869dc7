// Package labels canonicalizes free-text area and responsible names so
// that "Chancado Primario", "chancado primario" and "CHANCADO  PRIMARIO"
// group under one key while still rendering a readable form.
package labels

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Acronyms kept upper-case verbatim by DisplayLabel. Plant-area codes
// and chemical symbols show up in area names and should not be
// title-cased into "Sx" or "Ew".
var acronyms = map[string]string{
	"cu":  "CU",
	"mo":  "MO",
	"sx":  "SX",
	"ew":  "EW",
	"pls": "PLS",
	"sag": "SAG",
	"hse": "HSE",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeKey returns the grouping key for a raw area or user name:
// lower-cased, diacritics stripped, inner whitespace collapsed to a
// single space. Empty input yields the empty key.
func NormalizeKey(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(s), " ")
}

// DisplayLabel renders a raw name for humans: each word capitalized,
// known acronyms restored to upper case, purely numeric tokens left
// untouched. Opaque identifiers (see OpaqueID) are shortened to a
// placeholder instead of leaking a 30-character hash into a chart axis.
func DisplayLabel(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if OpaqueID(s) {
		return fmt.Sprintf("usuario-%s", strings.ToLower(s[:8]))
	}
	words := strings.Fields(s)
	for i, w := range words {
		lw := strings.ToLower(w)
		if up, ok := acronyms[lw]; ok {
			words[i] = up
			continue
		}
		if numericToken(w) {
			continue
		}
		r := []rune(lw)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// OpaqueID reports whether s looks like a machine identifier rather
// than a person or area name: long, a single token, and made of hex or
// UUID-style characters only.
func OpaqueID(s string) bool {
	if len(s) < 20 || strings.ContainsAny(s, " \t") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func numericToken(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
