package analyze

import (
	"regexp"
	"strings"

	"github.com/ppiankov/provenance/internal/heuristics"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk splits text into paragraph-aligned pieces whose estimated token count
// does not exceed budget. A paragraph larger than the budget is split at
// sentence boundaries, and a sentence larger than the budget is cut into
// fixed windows. budget <= 0 disables chunking.
func Chunk(text string, budget int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if budget <= 0 || heuristics.EstimateTokens(text) <= budget {
		return []string{text}
	}

	var units []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if heuristics.EstimateTokens(p) <= budget {
			units = append(units, p)
			continue
		}
		units = append(units, splitOversized(p, budget)...)
	}

	var chunks []string
	var current strings.Builder
	for _, u := range units {
		if current.Len() > 0 && heuristics.EstimateTokens(current.String()+"\n\n"+u) > budget {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(u)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]?\s+`)

func splitOversized(paragraph string, budget int) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(paragraph, -1) {
		sentences = append(sentences, strings.TrimSpace(paragraph[last:loc[1]]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(paragraph[last:]); rest != "" {
		sentences = append(sentences, rest)
	}

	var out []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}
	for _, s := range sentences {
		if heuristics.EstimateTokens(s) > budget {
			flush()
			out = append(out, window(s, budget*4)...)
			continue
		}
		if current.Len() > 0 && heuristics.EstimateTokens(current.String()+" "+s) > budget {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	flush()
	return out
}

// window cuts s into pieces of at most size runes
func window(s string, size int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, strings.TrimSpace(string(runes[:n])))
		runes = runes[n:]
	}
	return out
}
