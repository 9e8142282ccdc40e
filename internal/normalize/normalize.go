// Package normalize canonicalizes names and free text so that lookups and
// full-text search ignore case and diacritics.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, decomposes it (NFD), drops combining marks and
// trims surrounding whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(stripMarks(), s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(strings.ToLower(out))
}

// Aggressive normalizes the stem of a file name and removes every
// punctuation, symbol and whitespace rune. Only used for last-resort
// matching between sources.
func Aggressive(name string) string {
	stem := Normalize(Stem(name))
	if stem == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, stem)
}

// Stem returns name without its final extension. Leading dots do not start
// an extension, so ".profile" is its own stem.
func Stem(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name
	}
	if strings.Trim(name[:i], ".") == "" {
		return name
	}
	if strings.ContainsAny(name[i:], `/\`) {
		return name
	}
	return name[:i]
}

// HasMarks reports whether s still carries combining marks.
func HasMarks(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			return true
		}
	}
	return false
}

func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
}
