package extract

import (
	"strings"
)

const maxTestimonialHints = 10

var firstPersonMarkers = []string{
	"i ", "i'm ", "i’ve ", "i've ", "i was ", "my ", "me ", "we ", "our ", "us ",
}

// TestimonialHints picks first-person sentences from text. They are passed
// to the semantic service so that personal accounts are reported as
// testimonials rather than as verifiable claims.
func TestimonialHints(text string) []string {
	var hints []string
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		lower := " " + strings.ToLower(sentence) + " "
		for _, marker := range firstPersonMarkers {
			if !strings.Contains(lower, " "+marker) {
				continue
			}
			if !seen[lower] {
				seen[lower] = true
				hints = append(hints, sentence)
			}
			break
		}
		if len(hints) >= maxTestimonialHints {
			break
		}
	}
	return hints
}

// splitSentences splits text into sentences of 30 to 500 bytes
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")

	var sentences []string
	var current strings.Builder
	keep := func() {
		sentence := strings.TrimSpace(current.String())
		if len(sentence) >= 30 && len(sentence) <= 500 {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			keep()
		}
	}
	if current.Len() > 0 {
		keep()
	}
	return sentences
}
