package query

import (
	"strings"
	"unicode/utf8"
)

// ShortTermLen is the longest term that is always quoted when compiled.
const ShortTermLen = 4

// Compile renders p as an FTS5 MATCH expression. ok is false when there is
// nothing positive to match, which callers treat as "no results".
func Compile(p Parsed) (expr string, ok bool) {
	var parts []string
	terms, alternatives := p.Positive()
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, quoteTerm(t))
		}
	}
	if alternatives && len(parts) > 1 {
		parts = []string{"(" + strings.Join(parts, " OR ") + ")"}
	}
	if len(parts) == 0 {
		return "", false
	}

	expr = strings.Join(parts, " ")
	if len(p.Exclude) > 0 {
		if len(parts) > 1 {
			expr = "(" + expr + ")"
		}
		var b strings.Builder
		b.WriteString(expr)
		for _, x := range p.Exclude {
			b.WriteString(" NOT ")
			b.WriteString(quote(x))
		}
		expr = b.String()
	}
	return expr, true
}

func quoteTerm(t string) string {
	if utf8.RuneCountInString(t) <= ShortTermLen || isTag(t) || !isBareword(t) {
		return quote(t)
	}
	return t
}

func quote(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

func isTag(t string) bool {
	return t != "" && strings.ContainsRune("<&#@", rune(t[0]))
}

// isBareword reports whether FTS5 accepts t unquoted.
func isBareword(t string) bool {
	switch t {
	case "AND", "OR", "NOT", "NEAR":
		return false
	}
	for _, r := range t {
		switch {
		case r >= 0x80, r == '_', r == 0x1a:
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
