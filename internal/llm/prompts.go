package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const topicsSystemPrompt = `You extract verifiable content from documents for a provenance graph. You NEVER judge whether a claim is true.

Return ONLY a JSON object with exactly these keys:
{
  "generalTopic": "one or two words naming the overall subject",
  "specificTopics": ["up to 5 narrower subjects"],
  "claims": ["atomic, independently verifiable factual statements"],
  "testimonials": ["first-person experiences quoted in the text"]
}

RULES:
1. Each claim must stand alone: resolve pronouns, keep numbers and dates.
2. Skip opinions, questions, advertising and navigation text.
3. Copy testimonials verbatim; do not invent them.
4. Use empty arrays when nothing qualifies.`

const queriesSystemPrompt = `You plan web searches that could confirm or contradict factual claims.

Return ONLY a JSON object:
{
  "claims": [
    {
      "claim": "the claim exactly as given",
      "queries": ["1 to 3 short search engine queries"],
      "preferredDomains": ["domains likely to hold primary evidence"],
      "avoidDomains": ["domains to skip, such as the source site itself"]
    }
  ]
}

Prefer primary sources: studies, official statistics, court records, original reporting.`

const rankSystemPrompt = `You select evidence sources for factual claims. Evidence quality matters, not whether you agree.

CRITICAL RULES:
1. You MUST ONLY select URLs from each claim's candidate list.
2. Pick 1 to 3 sources per claim, best first. Skip a claim if no candidate is relevant.
3. "stance" is one of: "supports", "refutes", "related".
4. "confidence" is a number from 0 to 1.

Return ONLY a JSON object:
{
  "claims": [
    {
      "claim": "the claim exactly as given",
      "sources": [{"url": "...", "stance": "supports", "confidence": 0.8, "reason": "short reason"}]
    }
  ]
}`

// BuildTopicsPrompt builds the user prompt for ExtractTopicsAndClaims
func BuildTopicsPrompt(text string, hints []string) string {
	var b strings.Builder
	if len(hints) > 0 {
		b.WriteString("Possible testimonials spotted in the text (confirm or discard):\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	b.WriteString("Document text:\n")
	b.WriteString(text)
	return b.String()
}

// BuildQueriesPrompt builds the user prompt for SuggestQueriesForClaims.
// The document text gives the queries context; it is truncated to keep the
// request small.
func BuildQueriesPrompt(text string, claims []string) string {
	var b strings.Builder
	b.WriteString("Claims:\n")
	for i, c := range claims {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	if text = strings.TrimSpace(text); text != "" {
		b.WriteString("\nSource document excerpt:\n")
		b.WriteString(truncateRunes(text, 4000))
	}
	return b.String()
}

// BuildRankPrompt builds the user prompt for SearchAndRankSources
func BuildRankPrompt(items []RankItem) (string, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rank items: %w", err)
	}
	return "Claims with search candidates:\n" + string(data), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
