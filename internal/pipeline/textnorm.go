package pipeline

import (
	"strings"
	"unicode"
)

// stopWords are dropped before any text comparison or fingerprinting.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {},
}

// cleanText collapses whitespace and strips control characters, keeping
// the original casing and punctuation.
func cleanText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// normalizeForMatch lowercases, replaces punctuation with spaces, collapses
// whitespace and removes stop words. Comparison and fingerprinting both go
// through here so the two stay consistent.
func normalizeForMatch(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, word := range words {
		if _, skip := stopWords[word]; skip {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}

func wordSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}
