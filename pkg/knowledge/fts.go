package knowledge

import (
	"regexp"
	"strings"
)

// wordRe extracts Unicode-aware word runs (letters/digits/underscore,
// which covers CJK ideographs as well as Latin text) from a query string.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

const maxFTSTerms = 8

// buildFTSQuery turns raw free text into an FTS5 MATCH expression: each
// term quoted (so punctuation inside a term can't break the query
// syntax) and ANDed together, capped at maxFTSTerms terms. Returns ""
// when the input yields no usable terms, signaling the caller to fall
// back to a substring match.
func buildFTSQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	terms := wordRe.FindAllString(raw, -1)
	if len(terms) > maxFTSTerms {
		terms = terms[:maxFTSTerms]
	}
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " AND ")
}

// substringPattern returns the %LIKE% pattern for the safe fallback
// path, capped at 50 characters of raw query.
func substringPattern(raw string) string {
	raw = strings.TrimSpace(raw)
	runes := []rune(raw)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return "%" + string(runes) + "%"
}
