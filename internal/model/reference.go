package model

// Origin records how a reference link was discovered
type Origin string

const (
	OriginDOM   Origin = "dom"   // Found in the document body
	OriginClaim Origin = "claim" // Found by claim-to-evidence mapping
)

// Assessment is the evidence mapper's verdict for one (claim, source) pair
type Assessment struct {
	Stance     Stance  `json:"stance"`
	Confidence float64 `json:"confidence"`
}

// ReferenceLink is an edge from a content record to a candidate evidence URL
type ReferenceLink struct {
	URL         string                `json:"url"`
	Title       string                `json:"title,omitempty"`
	Origin      Origin                `json:"origin"`
	Claims      []string              `json:"claims,omitempty"`
	Assessments map[string]Assessment `json:"assessments,omitempty"` // Keyed by ClaimKey
	Score       float64               `json:"score,omitempty"`       // Citation likelihood (dom) or rank (claim)
}

// Merge folds other into l: claim texts are unioned, origin is promoted to claim
// if either side says so, and the first non-empty title wins.
func (l *ReferenceLink) Merge(other ReferenceLink) {
	if l.Title == "" {
		l.Title = other.Title
	}
	if other.Origin == OriginClaim {
		l.Origin = OriginClaim
	}
	if other.Score > l.Score {
		l.Score = other.Score
	}

	for _, claim := range other.Claims {
		l.AddClaim(claim, lookupAssessment(other.Assessments, claim))
	}
}

// AddClaim associates a claim with the link, keeping the stronger assessment
func (l *ReferenceLink) AddClaim(claim string, a Assessment) {
	key := ClaimKey(claim)
	if key == "" {
		return
	}

	found := false
	for _, existing := range l.Claims {
		if ClaimKey(existing) == key {
			found = true
			break
		}
	}
	if !found {
		l.Claims = append(l.Claims, claim)
	}

	if a.Stance == "" {
		return
	}
	if l.Assessments == nil {
		l.Assessments = make(map[string]Assessment)
	}
	if prev, ok := l.Assessments[key]; !ok || a.Confidence > prev.Confidence {
		l.Assessments[key] = a
	}
}

// Assessment returns the verdict recorded for claim, matched by ClaimKey
func (l *ReferenceLink) Assessment(claim string) (Assessment, bool) {
	a, ok := l.Assessments[ClaimKey(claim)]
	return a, ok
}

// lookupAssessment finds claim's verdict in a caller-built map, which may be
// keyed by raw or normalized claim text
func lookupAssessment(m map[string]Assessment, claim string) Assessment {
	if a, ok := m[claim]; ok {
		return a
	}
	key := ClaimKey(claim)
	for k, a := range m {
		if ClaimKey(k) == key {
			return a
		}
	}
	return Assessment{}
}

// ReferenceSet is an insertion-ordered set of reference links keyed by normalized URL
type ReferenceSet struct {
	normalize func(string) string
	index     map[string]int
	links     []*ReferenceLink
}

// NewReferenceSet creates a set; normalize maps URLs to their identity key (nil = identity)
func NewReferenceSet(normalize func(string) string) *ReferenceSet {
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	return &ReferenceSet{
		normalize: normalize,
		index:     make(map[string]int),
	}
}

// Add inserts link or merges it into the existing link with the same URL.
// It returns the stored link.
func (s *ReferenceSet) Add(link ReferenceLink) *ReferenceLink {
	key := s.normalize(link.URL)
	if key == "" {
		return nil
	}

	if i, ok := s.index[key]; ok {
		s.links[i].Merge(link)
		return s.links[i]
	}

	stored := &ReferenceLink{
		URL:    link.URL,
		Title:  link.Title,
		Origin: link.Origin,
		Score:  link.Score,
	}
	if stored.Origin == "" {
		stored.Origin = OriginDOM
	}
	for _, claim := range link.Claims {
		stored.AddClaim(claim, lookupAssessment(link.Assessments, claim))
	}

	s.index[key] = len(s.links)
	s.links = append(s.links, stored)
	return stored
}

// Get returns the link stored for rawURL
func (s *ReferenceSet) Get(rawURL string) (*ReferenceLink, bool) {
	i, ok := s.index[s.normalize(rawURL)]
	if !ok {
		return nil, false
	}
	return s.links[i], true
}

// Len returns the number of distinct URLs
func (s *ReferenceSet) Len() int {
	return len(s.links)
}

// Links returns the links in first-seen order
func (s *ReferenceSet) Links() []ReferenceLink {
	out := make([]ReferenceLink, len(s.links))
	for i, l := range s.links {
		out[i] = *l
	}
	return out
}
