// Package fold normalises display strings for case- and diacritic-insensitive
// comparison.
package fold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// String strips combining marks and applies Unicode case folding, so
// "Zoë", "ZOE" and "zoe" all fold to "zoe".
func String(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

// Initial returns the uppercased first character of the folded string,
// or fallback when nothing remains after folding.
func Initial(s, fallback string) string {
	folded := strings.TrimSpace(String(s))
	for _, r := range folded {
		return strings.ToUpper(string(r))
	}
	return fallback
}
