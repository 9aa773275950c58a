package evidence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/provenance/internal/llm"
	"github.com/ppiankov/provenance/internal/model"
)

type fakeSemantic struct {
	mu         sync.Mutex
	queries    string
	queriesErr error
	rank       string
	rankErr    error
	rankItems  []llm.RankItem
}

func (f *fakeSemantic) SuggestQueriesForClaims(_ context.Context, _ string, _ []string) (string, error) {
	return f.queries, f.queriesErr
}

func (f *fakeSemantic) SearchAndRankSources(_ context.Context, items []llm.RankItem) (string, error) {
	f.mu.Lock()
	f.rankItems = items
	f.mu.Unlock()
	return f.rank, f.rankErr
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	results map[string][]SearchResult
	errs    map[string]error
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

const (
	claimCoffee = "Coffee lowers heart disease risk by 10%."
	claimSleep  = "Adults need seven hours of sleep."
)

func newTestMapper(sem Semantic, search Searcher) *Mapper {
	return NewMapper(sem, search, NewAuthorityClassifier(nil), model.EvidenceConfig{
		MaxQueriesPerClaim: 2,
		ResultsPerQuery:    5,
		CandidatesPerClaim: 5,
		MaxSourcesPerClaim: 3,
		SearchWorkers:      2,
	}, nil)
}

func TestMapper_MapClaimsToEvidence(t *testing.T) {
	sem := &fakeSemantic{
		queries: `{"claims":[
			{"claim":"` + claimCoffee + `","queries":["coffee heart study","coffee heart study","coffee cardiovascular cohort","extra query"],"avoidDomains":["spam.test"]},
			{"claim":"` + claimSleep + `","queries":["sleep hours adults"]}
		]}`,
		rank: "```json\n" + `{"claims":[
			{"claim":"` + claimCoffee + `","sources":[
				{"url":"https://www.nih.gov/coffee","stance":"Supports","confidence":0.9},
				{"url":"https://invented.test/not-searched","stance":"supports","confidence":1},
				{"url":"https://shared.test/health","stance":"maybe","confidence":1.7}
			]},
			{"claim":"adults need seven hours of sleep","sources":[
				{"url":"https://shared.test/health#sleep","stance":"refutes","confidence":0.4}
			]}
		]}` + "\n```",
	}
	search := &fakeSearcher{results: map[string][]SearchResult{
		"coffee heart study": {
			{URL: "https://www.nih.gov/coffee", Title: "Coffee and heart disease"},
			{URL: "https://spam.test/coffee", Title: "Coffee heart miracle"},
		},
		"coffee cardiovascular cohort": {{URL: "https://shared.test/health", Title: "Health roundup"}},
		"sleep hours adults":           {{URL: "https://shared.test/health", Title: "Health roundup"}},
	}}

	m, err := newTestMapper(sem, search).MapClaimsToEvidence(context.Background(), "source text", []string{claimCoffee, claimSleep, " " + claimCoffee})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"coffee heart study", "coffee cardiovascular cohort", "sleep hours adults"}, search.queries)

	// Avoided domains never reach the ranking step
	for _, item := range sem.rankItems {
		for _, c := range item.Candidates {
			assert.NotContains(t, c.URL, "spam.test")
		}
	}

	links := m.Links()
	require.Len(t, links, 2, "invented URL must be discarded and shared URL merged")

	nih := links[0]
	assert.Equal(t, "https://www.nih.gov/coffee", nih.URL)
	assert.Equal(t, model.OriginClaim, nih.Origin)
	assert.Equal(t, model.Assessment{Stance: model.StanceSupports, Confidence: 0.9}, nih.Assessments[claimCoffee])

	shared := links[1]
	assert.Equal(t, []string{claimCoffee, claimSleep}, shared.Claims)
	assert.Equal(t, model.Assessment{Stance: model.StanceRelated, Confidence: 1}, shared.Assessments[claimCoffee])
	assert.Equal(t, model.StanceRefutes, shared.Assessments[claimSleep].Stance)

	assert.Len(t, m.ForClaim(claimCoffee), 2)
	assert.Len(t, m.ForClaim(claimSleep), 1)
}

func TestMapper_FallsBackToClaimTextQueries(t *testing.T) {
	sem := &fakeSemantic{queries: "not json at all", rank: `{"claims":[]}`}
	search := &fakeSearcher{}

	_, err := newTestMapper(sem, search).MapClaimsToEvidence(context.Background(), "", []string{claimCoffee})
	require.NoError(t, err)
	assert.Equal(t, []string{claimCoffee}, search.queries)
}

func TestMapper_RankingFailureDropsClaims(t *testing.T) {
	search := &fakeSearcher{results: map[string][]SearchResult{
		claimCoffee: {{URL: "https://www.nih.gov/coffee", Title: "Coffee"}},
	}}

	for _, sem := range []*fakeSemantic{
		{queriesErr: errors.New("down"), rank: "I am unable to comply"},
		{queriesErr: errors.New("down"), rankErr: errors.New("quota")},
	} {
		m, err := newTestMapper(sem, search).MapClaimsToEvidence(context.Background(), "", []string{claimCoffee})
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
	}
}

func TestMapper_SearchFailureIsSoft(t *testing.T) {
	sem := &fakeSemantic{
		queries: `{"claims":[{"claim":"` + claimCoffee + `","queries":["a","b"]}]}`,
		rank:    `{"claims":[{"claim":"` + claimCoffee + `","sources":[{"url":"https://b.test/","stance":"supports","confidence":0.5}]}]}`,
	}
	search := &fakeSearcher{
		results: map[string][]SearchResult{"b": {{URL: "https://b.test/", Title: "B"}}},
		errs:    map[string]error{"a": errors.New("timeout")},
	}

	m, err := newTestMapper(sem, search).MapClaimsToEvidence(context.Background(), "", []string{claimCoffee})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	assert.Equal(t, "https://b.test/", m.Links()[0].URL)
}

func TestMapper_CapsSourcesPerClaim(t *testing.T) {
	var results []SearchResult
	var sources []string
	for _, host := range []string{"a", "b", "c", "d"} {
		u := "https://" + host + ".test/"
		results = append(results, SearchResult{URL: u, Title: host})
		sources = append(sources, `{"url":"`+u+`","stance":"related","confidence":0.5}`)
	}
	sem := &fakeSemantic{
		queries: `{"claims":[{"claim":"` + claimSleep + `","queries":["q"]}]}`,
		rank:    `{"claims":[{"claim":"` + claimSleep + `","sources":[` + strings.Join(sources, ",") + `]}]}`,
	}
	search := &fakeSearcher{results: map[string][]SearchResult{"q": results}}

	m, err := newTestMapper(sem, search).MapClaimsToEvidence(context.Background(), "", []string{claimSleep})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
}

func TestMapper_NoClaimsOrDisabled(t *testing.T) {
	m, err := newTestMapper(&fakeSemantic{}, &fakeSearcher{}).MapClaimsToEvidence(context.Background(), "text", []string{" ", ""})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())

	m, err = NewMapper(nil, nil, nil, model.EvidenceConfig{}, nil).MapClaimsToEvidence(context.Background(), "text", []string{claimCoffee})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestMapper_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sem := &fakeSemantic{queries: `{"claims":[]}`}
	_, err := newTestMapper(sem, &fakeSearcher{}).MapClaimsToEvidence(ctx, "", []string{claimCoffee})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRankCandidates_PrefersAuthorityAndRelevance(t *testing.T) {
	results := []SearchResult{
		{URL: "https://blog.test/post", Title: "Random musings"},
		{URL: "https://www.cdc.gov/sleep", Title: "How much sleep adults need"},
		{URL: "https://preferred.test/sleep", Title: "Sleep"},
		{URL: "https://www.cdc.gov/sleep/", Title: "duplicate"},
	}
	plan := llm.ClaimQueries{PreferredDomains: []string{"preferred.test"}}

	got := rankCandidates(claimSleep, results, plan, NewAuthorityClassifier(nil), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.cdc.gov/sleep", got[0].URL)
	assert.Equal(t, "cdc.gov", got[0].Domain)
	assert.Equal(t, "https://preferred.test/sleep", got[1].URL)
}
