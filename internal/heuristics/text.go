package heuristics

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// EstimateTokens approximates the model token count of text (about four runes per token)
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// Tokens splits text into lowercased word tokens of at least three runes,
// dropping common stop words. Used for overlap scoring.
func Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 3 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Overlap is the Jaccard similarity of the token sets of a and b
func Overlap(a, b string) float64 {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	sa := make(map[string]bool, len(ta))
	for _, t := range ta {
		sa[t] = true
	}
	sb := make(map[string]bool, len(tb))
	for _, t := range tb {
		sb[t] = true
	}

	inter := 0
	for t := range sa {
		if sb[t] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

var stopWords = set(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "had",
	"her", "was", "one", "our", "out", "has", "have", "his", "how", "its", "may",
	"new", "now", "who", "did", "get", "him", "this", "that", "with", "from",
	"they", "been", "were", "will", "than", "then", "them", "into", "more",
	"also", "such", "which", "their", "there", "about", "would", "could", "should",
)
