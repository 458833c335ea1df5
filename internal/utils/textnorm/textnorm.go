// Package textnorm normalizes phrase text for duplicate detection and search.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clean trims and collapses internal whitespace. It keeps case and accents,
// so it is what gets stored as the phrase text.
func Clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize returns the comparison key of s: cleaned, lowercased and with
// diacritics stripped ("  Cuñado  GUAPO " -> "cunado guapo").
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, Clean(s))
	if err != nil {
		out = Clean(s)
	}
	return strings.ToLower(out)
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b string) bool { return Normalize(a) == Normalize(b) }
