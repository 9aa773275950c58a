package heuristics

import (
	"regexp"
	"strings"
)

// Tokens whose presence in a link's text or surrounding sentence suggests the
// link is a citation rather than navigation.
var citationCues = []string{
	"study", "studies", "research", "researchers", "report", "survey", "paper",
	"journal", "doi", "according to", "published", "findings", "data from",
	"analysis", "pdf", "source", "cited", "meta-analysis", "trial", "preprint",
	"peer-reviewed", "statistics", "census", "white paper", "documented",
}

var (
	bracketNumeral = regexp.MustCompile(`\[\d{1,3}\]`)
	doiPattern     = regexp.MustCompile(`(?i)\b10\.\d{4,9}/\S+`)
	wordBoundary   = regexp.MustCompile(`[^\p{L}\p{N}\-]+`)
)

// HasCitationCue reports whether text contains any citation cue
func HasCitationCue(text string) bool {
	return CitationScore(text) > 0
}

// CitationScore counts distinct citation cues in text; bracketed numerals and
// DOIs count double.
func CitationScore(text string) float64 {
	if text == "" {
		return 0
	}
	lower := " " + strings.ToLower(CollapseSpace(text)) + " "
	padded := " " + wordBoundary.ReplaceAllString(lower, " ") + " "

	score := 0.0
	for _, cue := range citationCues {
		if strings.Contains(cue, " ") {
			if strings.Contains(lower, cue) {
				score++
			}
			continue
		}
		if strings.Contains(padded, " "+cue+" ") {
			score++
		}
	}
	if bracketNumeral.MatchString(text) {
		score += 2
	}
	if doiPattern.MatchString(text) {
		score += 2
	}
	return score
}

// CitationURLBonus scores URL shapes that are almost always citations
func CitationURLBonus(rawURL string) float64 {
	lower := strings.ToLower(rawURL)
	bonus := 0.0
	switch {
	case strings.Contains(lower, "doi.org/"), doiPattern.MatchString(lower):
		bonus += 3
	case strings.Contains(lower, "pubmed"), strings.Contains(lower, "arxiv.org"), strings.Contains(lower, "ncbi.nlm.nih.gov"):
		bonus += 2
	}
	if strings.HasSuffix(strings.SplitN(lower, "?", 2)[0], ".pdf") {
		bonus++
	}
	return bonus
}

// SentenceAround returns the sentence of text containing needle, or the whole
// text when needle cannot be located.
func SentenceAround(text, needle string) string {
	text = CollapseSpace(text)
	needle = CollapseSpace(needle)
	if needle == "" {
		return text
	}
	idx := strings.Index(text, needle)
	if idx < 0 {
		return text
	}

	start := 0
	for i := idx - 1; i > 0; i-- {
		if isSentenceEnd(text[i]) && i+1 < len(text) && text[i+1] == ' ' {
			start = i + 2
			break
		}
	}
	end := len(text)
	for i := idx + len(needle); i < len(text); i++ {
		if isSentenceEnd(text[i]) && (i+1 == len(text) || text[i+1] == ' ') {
			end = i + 1
			break
		}
	}
	return strings.TrimSpace(text[start:end])
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

var retractionMarkers = regexp.MustCompile(`(?i)(^\s*retracted\b|\bretraction notice\b|\bretraction note\b|\bthis article has been retracted\b|\bnotice of retraction\b|\[retracted\])`)

// LooksRetracted reports whether a title or leading text marks the document as retracted
func LooksRetracted(texts ...string) bool {
	for _, t := range texts {
		if retractionMarkers.MatchString(t) {
			return true
		}
	}
	return false
}

var platformPattern = regexp.MustCompile(`(?i)^(.{2,80}?)\s+(?:on|\|)\s+(twitter|x|instagram|facebook|tiktok|youtube|linkedin|threads|bluesky|reddit|medium|substack)\b`)

// PlatformPublisher extracts the poster from titles such as "NASA on X: ..." or
// "Jane Doe on Instagram". The platform name is returned as the publisher.
func PlatformPublisher(title string) (poster, platform string, ok bool) {
	m := platformPattern.FindStringSubmatch(CollapseSpace(title))
	if m == nil {
		return "", "", false
	}
	platform = m[2]
	switch strings.ToLower(platform) {
	case "x":
		platform = "X"
	default:
		platform = strings.ToUpper(platform[:1]) + strings.ToLower(platform[1:])
	}
	return strings.TrimSpace(m[1]), platform, true
}
