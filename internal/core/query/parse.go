package query

import (
	"regexp"
	"strings"
	"time"

	"filecatalog/internal/normalize"
)

const dateLayout = "2006-01-02"

var (
	rePhrase        = regexp.MustCompile(`"([^"]+)"`)
	reCreatedBefore = regexp.MustCompile(`createdbefore:(\d{4}-\d{2}-\d{2})`)
	reCreatedAfter  = regexp.MustCompile(`createdafter:(\d{4}-\d{2}-\d{2})`)
	reTag           = regexp.MustCompile(`[<&#@][\p{L}\p{N}_]+`)
	reExclude       = regexp.MustCompile(`(^|\s)-([\p{L}\p{N}_<&#@][\p{L}\p{N}_]+)`)
	reOr            = regexp.MustCompile(`(?i)\s+or\s+`)
	reAnd           = regexp.MustCompile(`(?i)\s+and\s+`)
	reSpace         = regexp.MustCompile(`\s+`)
)

type Filters struct {
	Starred       bool
	CreatedBefore *time.Time
	CreatedAfter  *time.Time
}

func (f Filters) IsZero() bool {
	return !f.Starred && f.CreatedBefore == nil && f.CreatedAfter == nil
}

type Parsed struct {
	Terms    []string
	Exclude  []string
	OrGroups []string
	Filters  Filters
}

// Parse normalizes raw and splits it into terms, exclusions, OR alternatives
// and structural filters. Dates are read in the local time zone.
func Parse(raw string) Parsed {
	return ParseIn(raw, time.Local)
}

// ParseIn is Parse with an explicit time zone for date operators.
func ParseIn(raw string, loc *time.Location) Parsed {
	if loc == nil {
		loc = time.Local
	}
	var p Parsed
	s := normalize.Normalize(raw)

	for _, m := range rePhrase.FindAllStringSubmatch(s, -1) {
		p.Terms = append(p.Terms, strings.TrimSpace(m[1]))
	}
	s = rePhrase.ReplaceAllString(s, " ")

	if strings.Contains(s, "is:starred") {
		p.Filters.Starred = true
		s = strings.ReplaceAll(s, "is:starred", " ")
	}

	if m := reCreatedBefore.FindStringSubmatch(s); m != nil {
		if t, err := time.ParseInLocation(dateLayout, m[1], loc); err == nil {
			p.Filters.CreatedBefore = &t
			s = strings.Replace(s, m[0], " ", 1)
		}
	}
	if m := reCreatedAfter.FindStringSubmatch(s); m != nil {
		if t, err := time.ParseInLocation(dateLayout, m[1], loc); err == nil {
			p.Filters.CreatedAfter = &t
			s = strings.Replace(s, m[0], " ", 1)
		}
	}

	p.Terms = append(p.Terms, reTag.FindAllString(s, -1)...)
	s = reTag.ReplaceAllString(s, " ")

	for _, m := range reExclude.FindAllStringSubmatch(s, -1) {
		p.Exclude = append(p.Exclude, m[2])
	}
	s = reExclude.ReplaceAllString(s, "$1")

	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, " or "):
		p.OrGroups = splitNonEmpty(reOr, s)
	case strings.Contains(lower, " and "):
		p.Terms = append(p.Terms, splitNonEmpty(reAnd, s)...)
	default:
		p.Terms = append(p.Terms, splitNonEmpty(reSpace, s)...)
	}

	p.Terms = dedupe(dropOperators(p.Terms))
	p.Exclude = dedupe(p.Exclude)
	p.OrGroups = dedupe(dropOperators(p.OrGroups))
	return p
}

func splitNonEmpty(re *regexp.Regexp, s string) []string {
	var out []string
	for _, part := range re.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dropOperators(terms []string) []string {
	out := terms[:0]
	for _, t := range terms {
		switch strings.ToUpper(t) {
		case "OR", "AND", "NOT", "-":
			continue
		}
		out = append(out, t)
	}
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// HasText reports whether p carries any positive term to match.
func (p Parsed) HasText() bool {
	return len(p.Terms) > 0 || len(p.OrGroups) > 0
}

// Positive returns what a match must satisfy. When the query has OR
// alternatives they replace the plain terms and any one of them is enough
// (alternatives is true); otherwise every term must match.
func (p Parsed) Positive() (terms []string, alternatives bool) {
	if len(p.OrGroups) > 0 {
		return p.OrGroups, true
	}
	return p.Terms, false
}
