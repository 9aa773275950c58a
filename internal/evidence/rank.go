package evidence

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/llm"
)

const (
	preferredBonus = 1.5
	overlapWeight  = 2.0
)

// rankCandidates scores the search results for one claim and returns the best
// limit of them. Results on avoided domains are dropped; duplicates by
// normalized URL keep their first occurrence.
func rankCandidates(claim string, results []SearchResult, plan llm.ClaimQueries, authority *AuthorityClassifier, limit int) []llm.Candidate {
	preferred := lowerAll(plan.PreferredDomains)
	avoided := lowerAll(plan.AvoidDomains)

	seen := make(map[string]bool)
	var out []llm.Candidate
	for _, r := range results {
		key := heuristics.NormalizeURL(r.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		host := hostOf(r.URL)
		if host == "" || matchesDomain(host, avoided) {
			continue
		}

		score := authority.Classify(r.URL).weight()
		if matchesDomain(host, preferred) {
			score += preferredBonus
		}
		score += overlapWeight * heuristics.Overlap(claim, r.Title+" "+r.Snippet)

		out = append(out, llm.Candidate{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Snippet,
			Domain:  host,
			Score:   roundScore(score),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func roundScore(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
