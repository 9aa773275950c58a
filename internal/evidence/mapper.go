// Package evidence maps claims to external evidence: it asks the semantic
// service for search queries, runs the searches, ranks the results by
// authority and relevance, and lets the service pick sources with a stance.
package evidence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/llm"
	"github.com/ppiankov/provenance/internal/model"
)

// Semantic is the part of the semantic service the mapper calls
type Semantic interface {
	SuggestQueriesForClaims(ctx context.Context, text string, claims []string) (string, error)
	SearchAndRankSources(ctx context.Context, items []llm.RankItem) (string, error)
}

// Map is the result of evidence mapping: reference links merged by URL, plus
// the links selected for each claim
type Map struct {
	set     *model.ReferenceSet
	byClaim map[string][]string // claim key -> link URLs in selection order
}

// NewMap creates an empty Map
func NewMap() *Map {
	return &Map{
		set:     model.NewReferenceSet(heuristics.NormalizeURL),
		byClaim: make(map[string][]string),
	}
}

// Add records link as evidence for claim
func (m *Map) Add(claim string, link model.ReferenceLink) {
	m.set.Add(link)
	key := model.ClaimKey(claim)
	m.byClaim[key] = append(m.byClaim[key], link.URL)
}

// Links returns every evidence link once, in first-selected order
func (m *Map) Links() []model.ReferenceLink {
	return m.set.Links()
}

// ForClaim returns the links selected for claim
func (m *Map) ForClaim(claim string) []model.ReferenceLink {
	var out []model.ReferenceLink
	for _, u := range m.byClaim[model.ClaimKey(claim)] {
		if link, ok := m.set.Get(u); ok {
			out = append(out, *link)
		}
	}
	return out
}

// Len returns the number of distinct evidence URLs
func (m *Map) Len() int {
	return m.set.Len()
}

// Mapper is the evidence mapper
type Mapper struct {
	semantic  Semantic
	searcher  Searcher
	authority *AuthorityClassifier
	cfg       model.EvidenceConfig
	logger    *zap.Logger
}

// NewMapper creates a new Mapper
func NewMapper(semantic Semantic, searcher Searcher, authority *AuthorityClassifier, cfg model.EvidenceConfig, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authority == nil {
		authority = NewAuthorityClassifier(nil)
	}
	if cfg.MaxQueriesPerClaim <= 0 {
		cfg.MaxQueriesPerClaim = 3
	}
	if cfg.MaxSourcesPerClaim <= 0 || cfg.MaxSourcesPerClaim > 3 {
		cfg.MaxSourcesPerClaim = 3
	}
	if cfg.SearchWorkers <= 0 {
		cfg.SearchWorkers = 4
	}
	return &Mapper{
		semantic:  semantic,
		searcher:  searcher,
		authority: authority,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "evidence")),
	}
}

// MapClaimsToEvidence finds one to three sources per claim. Service and
// search failures drop the affected claims and are logged; only context
// cancellation is returned as an error.
func (m *Mapper) MapClaimsToEvidence(ctx context.Context, sourceText string, claims []string) (*Map, error) {
	result := NewMap()
	claims = uniqueClaims(claims, m.cfg.MaxClaims)
	if len(claims) == 0 || m.semantic == nil || m.searcher == nil {
		return result, nil
	}

	plans := m.planQueries(ctx, sourceText, claims)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := m.runSearches(ctx, plans)
	if err != nil {
		return nil, err
	}

	var items []llm.RankItem
	candidates := make(map[string]map[string]llm.Candidate) // claim key -> normalized URL -> candidate
	for i, plan := range plans {
		ranked := rankCandidates(plan.Claim, results[i], plan, m.authority, m.cfg.CandidatesPerClaim)
		if len(ranked) == 0 {
			continue
		}
		byURL := make(map[string]llm.Candidate, len(ranked))
		for _, c := range ranked {
			byURL[heuristics.NormalizeURL(c.URL)] = c
		}
		candidates[model.ClaimKey(plan.Claim)] = byURL
		items = append(items, llm.RankItem{Claim: plan.Claim, Candidates: ranked})
	}
	if len(items) == 0 {
		return result, nil
	}

	raw, err := m.semantic.SearchAndRankSources(ctx, items)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Warn("source ranking failed", zap.Error(err))
		return result, nil
	}

	var selection llm.SourceSelection
	if err := llm.ParseJSON(raw, &selection); err != nil {
		m.logger.Warn("dropping unparseable source selection", zap.Error(err))
		return result, nil
	}

	for _, picked := range selection.Claims {
		claim := matchClaim(picked.Claim, items)
		if claim == "" {
			m.logger.Debug("selection for unknown claim", zap.String("claim", picked.Claim))
			continue
		}
		byURL := candidates[model.ClaimKey(claim)]

		kept := 0
		for _, src := range picked.Sources {
			if kept >= m.cfg.MaxSourcesPerClaim {
				break
			}
			cand, ok := byURL[heuristics.NormalizeURL(src.URL)]
			if !ok {
				// Only URLs the search actually returned may become evidence
				m.logger.Debug("discarding source outside candidates", zap.String("url", src.URL))
				continue
			}
			assessment := model.Assessment{
				Stance:     model.ParseStance(src.Stance),
				Confidence: clamp01(src.Confidence),
			}
			result.Add(claim, model.ReferenceLink{
				URL:         cand.URL,
				Title:       cand.Title,
				Origin:      model.OriginClaim,
				Claims:      []string{claim},
				Assessments: map[string]model.Assessment{claim: assessment},
				Score:       cand.Score,
			})
			kept++
		}
	}

	m.logger.Info("evidence mapped", zap.Int("claims", len(claims)), zap.Int("sources", result.Len()))
	return result, nil
}

// planQueries asks the service for queries; a claim without usable queries
// is searched by its own text
func (m *Mapper) planQueries(ctx context.Context, sourceText string, claims []string) []llm.ClaimQueries {
	suggested := make(map[string]llm.ClaimQueries)

	raw, err := m.semantic.SuggestQueriesForClaims(ctx, sourceText, claims)
	if err != nil {
		m.logger.Warn("query suggestion failed, searching claim text", zap.Error(err))
	} else {
		var parsed llm.QuerySuggestions
		if err := llm.ParseJSON(raw, &parsed); err != nil {
			m.logger.Warn("unparseable query suggestions, searching claim text", zap.Error(err))
		}
		for _, q := range parsed.Claims {
			suggested[model.ClaimKey(q.Claim)] = q
		}
	}

	plans := make([]llm.ClaimQueries, len(claims))
	for i, claim := range claims {
		plan := suggested[model.ClaimKey(claim)]
		plan.Claim = claim

		var queries []string
		seen := make(map[string]bool)
		for _, q := range plan.Queries {
			q = heuristics.CollapseSpace(q)
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			queries = append(queries, q)
			if len(queries) == m.cfg.MaxQueriesPerClaim {
				break
			}
		}
		if len(queries) == 0 {
			queries = []string{claim}
		}
		plan.Queries = queries
		plans[i] = plan
	}
	return plans
}

// runSearches executes every query with bounded concurrency and returns the
// concatenated results per plan, in query order
func (m *Mapper) runSearches(ctx context.Context, plans []llm.ClaimQueries) ([][]SearchResult, error) {
	perQuery := make([][][]SearchResult, len(plans))
	for i, p := range plans {
		perQuery[i] = make([][]SearchResult, len(p.Queries))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.SearchWorkers)

	for i, plan := range plans {
		for j, query := range plan.Queries {
			g.Go(func() error {
				searchCtx := gctx
				if m.cfg.SearchTimeout > 0 {
					var cancel context.CancelFunc
					searchCtx, cancel = context.WithTimeout(gctx, m.cfg.SearchTimeout)
					defer cancel()
				}

				start := time.Now()
				found, err := m.searcher.Search(searchCtx, query, m.cfg.ResultsPerQuery)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					m.logger.Warn("search failed", zap.String("query", query), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
					return nil
				}

				mu.Lock()
				perQuery[i][j] = found
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]SearchResult, len(plans))
	for i := range plans {
		for _, found := range perQuery[i] {
			out[i] = append(out[i], found...)
		}
	}
	return out, nil
}

// matchClaim maps the claim text echoed by the service back onto a requested
// claim: exact normalized match first, then the closest by token overlap
func matchClaim(echoed string, items []llm.RankItem) string {
	key := model.ClaimKey(echoed)
	for _, it := range items {
		if model.ClaimKey(it.Claim) == key {
			return it.Claim
		}
	}

	best, bestScore := "", 0.6
	for _, it := range items {
		if s := heuristics.Overlap(echoed, it.Claim); s >= bestScore {
			best, bestScore = it.Claim, s
		}
	}
	return best
}

func uniqueClaims(claims []string, limit int) []string {
	seen := make(map[string]bool, len(claims))
	var out []string
	for _, c := range claims {
		key := model.ClaimKey(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
