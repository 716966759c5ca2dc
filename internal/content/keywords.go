package content

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minKeywordLength filters out short tokens that carry no meaning on
// their own.
const minKeywordLength = 3

// stopwords are common English words excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"had": true, "her": true, "was": true, "one": true, "our": true,
	"out": true, "has": true, "have": true, "him": true, "his": true,
	"how": true, "man": true, "new": true, "now": true, "old": true,
	"see": true, "two": true, "way": true, "who": true, "its": true,
	"did": true, "get": true, "may": true, "she": true, "use": true,
	"this": true, "that": true, "with": true, "from": true, "they": true,
	"will": true, "what": true, "when": true, "your": true, "than": true,
	"them": true, "then": true, "were": true, "been": true, "more": true,
	"some": true, "there": true, "their": true, "which": true, "about": true,
	"would": true, "these": true, "other": true, "into": true, "also": true,
	"such": true, "only": true, "over": true, "most": true, "here": true,
	"where": true, "after": true, "before": true, "while": true, "under": true,
}

// Keywords extracts up to limit keywords from normalized text, most
// frequent first. Ties break alphabetically so the result is stable for
// identical input. Tokens shorter than three runes, pure numbers, and
// common English stopwords are skipped.
func Keywords(text string, limit int) []string {
	if limit <= 0 || text == "" {
		return nil
	}

	counts := make(map[string]int)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minKeywordLength {
			continue
		}
		if stopwords[tok] || isNumeric(tok) {
			continue
		}
		counts[tok]++
	}
	if len(counts) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(counts))
	for tok := range counts {
		keywords = append(keywords, tok)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// isNumeric reports whether every rune in the token is a digit.
func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
