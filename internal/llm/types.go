package llm

// TopicsAndClaims is the response of ExtractTopicsAndClaims
type TopicsAndClaims struct {
	GeneralTopic   string   `json:"generalTopic"`
	SpecificTopics []string `json:"specificTopics"`
	Claims         []string `json:"claims"`
	Testimonials   []string `json:"testimonials"`
}

// QuerySuggestions is the response of SuggestQueriesForClaims
type QuerySuggestions struct {
	Claims []ClaimQueries `json:"claims"`
}

// ClaimQueries holds search queries and domain preferences for one claim
type ClaimQueries struct {
	Claim            string   `json:"claim"`
	Queries          []string `json:"queries"`
	PreferredDomains []string `json:"preferredDomains,omitempty"`
	AvoidDomains     []string `json:"avoidDomains,omitempty"`
}

// RankItem is one claim with the search candidates found for it
type RankItem struct {
	Claim      string      `json:"claim"`
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one search result offered for selection
type Candidate struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Domain  string  `json:"domain,omitempty"`
	Score   float64 `json:"score"`
}

// SourceSelection is the response of SearchAndRankSources
type SourceSelection struct {
	Claims []ClaimSources `json:"claims"`
}

// ClaimSources are the sources picked for one claim
type ClaimSources struct {
	Claim   string           `json:"claim"`
	Sources []SelectedSource `json:"sources"`
}

// SelectedSource is one chosen source with its stance toward the claim.
// Stance is free-form; callers coerce it with model.ParseStance.
type SelectedSource struct {
	URL        string  `json:"url"`
	Stance     string  `json:"stance"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}
