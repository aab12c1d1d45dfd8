package scoring

import (
	"slices"
	"strings"
	"unicode"
)

// matches compares a response to the canonical answer for an objective kind.
func matches(kind Kind, given, correct string) bool {
	switch kind {
	case KindFillBlank:
		return normalizeText(given) == normalizeText(correct)
	case KindMatching:
		return slices.Equal(pairSet(given), pairSet(correct))
	default:
		return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct))
	}
}

// normalizeText case-folds, strips punctuation and collapses whitespace.
func normalizeText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsPunct(r):
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// pairSet parses "a-1,b-2" into a sorted list of normalized pairs.
func pairSet(s string) []string {
	var pairs []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.Join(strings.Fields(p), ""))
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	slices.Sort(pairs)
	return pairs
}
