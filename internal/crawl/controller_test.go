package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ppiankov/provenance/internal/analyze"
	"github.com/ppiankov/provenance/internal/evidence"
	"github.com/ppiankov/provenance/internal/extract"
	"github.com/ppiankov/provenance/internal/fetch"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/queue"
	"github.com/ppiankov/provenance/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// page is one document of the fake web
type page struct {
	refs   []string
	claims []string
	image  string
}

type fakeWeb struct {
	mu     sync.Mutex
	pages  map[string]page
	fail   map[string]error
	counts map[string]int
}

func newFakeWeb(pages map[string]page) *fakeWeb {
	return &fakeWeb{pages: pages, fail: map[string]error{}, counts: map[string]int{}}
}

func (w *fakeWeb) Resolve(ctx context.Context, rawURL string, _ fetch.Strategy) (*fetch.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.counts[rawURL]++
	err := w.fail[rawURL]
	w.mu.Unlock()
	if err != nil {
		return &fetch.Resolution{Kind: fetch.KindUnusable, URL: rawURL}, err
	}
	return &fetch.Resolution{Kind: fetch.KindHTML, URL: rawURL, FinalURL: rawURL, Media: model.MediaWeb}, nil
}

func (w *fakeWeb) Extract(res *fetch.Resolution, rawURL, nameHint string) (*extract.Extraction, error) {
	p := w.pages[rawURL]
	ext := &extract.Extraction{
		Text:      "text of " + rawURL,
		Title:     "Title " + rawURL,
		Publisher: model.Publisher{Name: "Example Publisher"},
		Authors:   []model.Author{{Name: "Jane Doe"}},
		Image:     p.image,
		Media:     model.MediaWeb,
	}
	if nameHint != "" {
		ext.Title = nameHint
	}
	for _, ref := range p.refs {
		ext.References = append(ext.References, model.ReferenceLink{URL: ref, Origin: model.OriginDOM})
	}
	return ext, nil
}

func (w *fakeWeb) Analyze(ctx context.Context, text string, _ []string) (*analyze.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for url, p := range w.pages {
		if text != "text of "+url {
			continue
		}
		out := &analyze.Analysis{GeneralTopic: "Health"}
		for _, c := range p.claims {
			out.Claims = append(out.Claims, model.Claim{Text: c})
		}
		return out, nil
	}
	return &analyze.Analysis{}, nil
}

func (w *fakeWeb) resolved(rawURL string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[rawURL]
}

type mapperFunc func(ctx context.Context, sourceText string, claims []string) (*evidence.Map, error)

func (f mapperFunc) MapClaimsToEvidence(ctx context.Context, sourceText string, claims []string) (*evidence.Map, error) {
	return f(ctx, sourceText, claims)
}

type relation struct {
	parent, child int64
	system        bool
}

type contentClaim struct {
	content, claim int64
	relationship   string
}

type memGateway struct {
	mu            sync.Mutex
	nextID        int64
	ids           map[string]int64
	records       map[int64]model.ContentRecord
	failContent   map[string]bool
	claims        map[string]int64
	publishers    map[string]int64
	authors       map[string]int64
	relations     []relation
	contentClaims []contentClaim
	claimLinks    []model.ClaimLink
}

func newMemGateway() *memGateway {
	return &memGateway{
		ids:         map[string]int64{},
		records:     map[int64]model.ContentRecord{},
		failContent: map[string]bool{},
		claims:      map[string]int64{},
		publishers:  map[string]int64{},
		authors:     map[string]int64{},
	}
}

func (g *memGateway) id() int64 {
	g.nextID++
	return g.nextID
}

func (g *memGateway) UpsertContent(_ context.Context, c store.Content) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failContent[c.Record.URL] {
		return 0, errors.New("disk full")
	}
	id, ok := g.ids[c.Record.URL]
	if !ok {
		id = g.id()
		g.ids[c.Record.URL] = id
	}
	g.records[id] = *c.Record
	return id, nil
}

func (g *memGateway) SetThumbnail(_ context.Context, contentID int64, thumbnail string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[contentID]
	if !ok {
		return fmt.Errorf("content %d not found", contentID)
	}
	rec.Thumbnail = thumbnail
	g.records[contentID] = rec
	return nil
}

func (g *memGateway) upsertKey(m map[string]int64, key string) (int64, error) {
	if key == "" {
		return 0, store.ErrEmptyKey
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := m[key]; ok {
		return id, nil
	}
	id := g.id()
	m[key] = id
	return id, nil
}

func (g *memGateway) UpsertAuthor(_ context.Context, parts model.NameParts) (int64, error) {
	return g.upsertKey(g.authors, store.AuthorKey(parts))
}

func (g *memGateway) UpsertPublisher(_ context.Context, name string) (int64, error) {
	return g.upsertKey(g.publishers, store.PublisherKey(name))
}

func (g *memGateway) UpsertClaim(_ context.Context, text string) (int64, error) {
	return g.upsertKey(g.claims, model.ClaimKey(text))
}

func (g *memGateway) LinkContentRelation(_ context.Context, parentID, childID int64, system bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.relations = append(g.relations, relation{parentID, childID, system})
	return nil
}

func (g *memGateway) LinkContentClaim(_ context.Context, contentID, claimID int64, relationship string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contentClaims = append(g.contentClaims, contentClaim{contentID, claimID, relationship})
	return nil
}

func (g *memGateway) UpsertClaimLink(_ context.Context, link model.ClaimLink) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claimLinks = append(g.claimLinks, link)
	return nil
}

func (g *memGateway) Close() error { return nil }

func (g *memGateway) stored(rawURL string) (model.ContentRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.ids[rawURL]
	if !ok {
		return model.ContentRecord{}, false
	}
	return g.records[id], true
}

func (g *memGateway) storedURLs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var urls []string
	for u := range g.ids {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.ThumbnailJob
}

func (q *recordingQueue) Enqueue(_ context.Context, job queue.ThumbnailJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func newTestController(cfg model.CrawlConfig, web *fakeWeb, gw *memGateway, opts Options) *Controller {
	if opts.Analyzer == nil {
		opts.Analyzer = web
	}
	return NewController(cfg, web, web, gw, opts)
}

func TestIngest_VisitsEachURLOnce(t *testing.T) {
	web := newFakeWeb(map[string]page{
		"https://a.test/": {refs: []string{"https://b.test/", "https://c.test/"}},
		"https://b.test/": {refs: []string{"https://a.test/", "https://c.test/"}},
		"https://c.test/": {refs: []string{"https://b.test/"}},
	})
	gw := newMemGateway()
	c := newTestController(model.CrawlConfig{MaxDepth: 5, RecurseReferences: true}, web, gw, Options{})

	id, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	require.NoError(t, err)
	assert.NotZero(t, id)

	for _, u := range []string{"https://a.test/", "https://b.test/", "https://c.test/"} {
		assert.Equal(t, 1, web.resolved(u), "resolved %s", u)
	}
	assert.Equal(t, []string{"https://a.test/", "https://b.test/", "https://c.test/"}, gw.storedURLs())
}

func TestIngest_DepthBound(t *testing.T) {
	web := newFakeWeb(map[string]page{
		"https://a.test/": {refs: []string{"https://b.test/"}},
		"https://b.test/": {refs: []string{"https://c.test/"}},
		"https://c.test/": {refs: []string{"https://d.test/", "https://e.test/"}},
	})
	gw := newMemGateway()
	c := newTestController(model.CrawlConfig{MaxDepth: 2, RecurseReferences: true}, web, gw, Options{})

	_, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	require.NoError(t, err)

	assert.Equal(t, 1, web.resolved("https://c.test/"))
	assert.Equal(t, 0, web.resolved("https://d.test/"))
	assert.Equal(t, 0, web.resolved("https://e.test/"))
}

func TestIngest_ReferencesDoNotRecurseByDefault(t *testing.T) {
	web := newFakeWeb(map[string]page{
		"https://a.test/": {refs: []string{"https://b.test/"}},
		"https://b.test/": {refs: []string{"https://c.test/"}},
	})
	gw := newMemGateway()
	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{})

	_, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	require.NoError(t, err)

	assert.Equal(t, 1, web.resolved("https://b.test/"))
	assert.Equal(t, 0, web.resolved("https://c.test/"))

	rec, ok := gw.stored("https://b.test/")
	require.True(t, ok)
	assert.Equal(t, model.KindReference, rec.Kind)
}

func TestIngest_MergesDOMAndEvidenceReferences(t *testing.T) {
	web := newFakeWeb(map[string]page{
		"https://a.test/": {
			refs:   []string{"https://x.test/study"},
			claims: []string{"Coffee lowers heart disease risk"},
		},
		"https://x.test/study": {claims: []string{"Coffee drinkers had lower heart disease risk"}},
		"https://y.test/":      {claims: []string{"Unrelated sentence"}},
	})
	gw := newMemGateway()

	mapper := mapperFunc(func(_ context.Context, _ string, claims []string) (*evidence.Map, error) {
		require.Equal(t, []string{"Coffee lowers heart disease risk"}, claims)
		m := evidence.NewMap()
		m.Add(claims[0], model.ReferenceLink{
			URL:         "https://x.test/study#results",
			Origin:      model.OriginClaim,
			Claims:      []string{claims[0]},
			Assessments: map[string]model.Assessment{claims[0]: {Stance: model.StanceSupports, Confidence: 0.8}},
		})
		m.Add(claims[0], model.ReferenceLink{
			URL:         "https://y.test/",
			Origin:      model.OriginClaim,
			Claims:      []string{claims[0]},
			Assessments: map[string]model.Assessment{claims[0]: {Stance: "contradicts", Confidence: 0.4}},
		})
		return m, nil
	})

	c := newTestController(model.CrawlConfig{MaxDepth: 2, AnalyzeReferences: true}, web, gw, Options{Mapper: mapper})

	seedID, err := c.Ingest(context.Background(), "https://a.test/", "Seed", model.KindTask)
	require.NoError(t, err)

	assert.Equal(t, 1, web.resolved("https://x.test/study"))
	assert.Equal(t, 0, web.resolved("https://x.test/study#results"))
	assert.Equal(t, 1, web.resolved("https://y.test/"))

	seed, ok := gw.stored("https://a.test/")
	require.True(t, ok)
	assert.Equal(t, "Seed", seed.Name)
	assert.Equal(t, "Health", seed.Topic)
	require.Len(t, seed.References, 2)
	assert.Equal(t, "https://x.test/study", seed.References[0].URL)
	assert.Equal(t, model.OriginClaim, seed.References[0].Origin)
	assert.Equal(t, []string{"Coffee lowers heart disease risk"}, seed.References[0].Claims)

	gw.mu.Lock()
	defer gw.mu.Unlock()

	xID := gw.ids["https://x.test/study"]
	yID := gw.ids["https://y.test/"]
	parentClaim := gw.claims["Coffee lowers heart disease risk"]
	childClaim := gw.claims["Coffee drinkers had lower heart disease risk"]

	assert.ElementsMatch(t, []relation{{seedID, xID, true}, {seedID, yID, true}}, gw.relations)
	assert.Contains(t, gw.contentClaims, contentClaim{seedID, parentClaim, store.RelationSource})
	assert.Contains(t, gw.contentClaims, contentClaim{xID, parentClaim, "supports"})
	assert.Contains(t, gw.contentClaims, contentClaim{yID, parentClaim, "refutes"})

	require.NotEmpty(t, gw.claimLinks)
	assert.Contains(t, gw.claimLinks, model.ClaimLink{
		SourceClaimID: parentClaim,
		TargetClaimID: childClaim,
		Stance:        model.StanceSupports,
		Support:       0.8,
	})
}

func TestIngest_EvidenceStanceSurvivesClaimWhitespace(t *testing.T) {
	web := newFakeWeb(map[string]page{
		"https://a.test/":      {claims: []string{"Coffee lowers heart disease risk"}},
		"https://x.test/study": {claims: []string{"Coffee drinkers had lower heart disease risk"}},
	})
	gw := newMemGateway()

	mapper := mapperFunc(func(_ context.Context, _ string, claims []string) (*evidence.Map, error) {
		spaced := " Coffee  lowers heart disease risk "
		m := evidence.NewMap()
		m.Add(spaced, model.ReferenceLink{
			URL:         "https://x.test/study",
			Origin:      model.OriginClaim,
			Claims:      []string{spaced},
			Assessments: map[string]model.Assessment{spaced: {Stance: model.StanceRefutes, Confidence: 0.6}},
		})
		return m, nil
	})

	c := newTestController(model.CrawlConfig{MaxDepth: 2, AnalyzeReferences: true}, web, gw, Options{Mapper: mapper})
	_, err := c.Ingest(context.Background(), "https://a.test/", "Seed", model.KindTask)
	require.NoError(t, err)

	gw.mu.Lock()
	defer gw.mu.Unlock()

	xID := gw.ids["https://x.test/study"]
	parentClaim := gw.claims["Coffee lowers heart disease risk"]
	childClaim := gw.claims["Coffee drinkers had lower heart disease risk"]

	assert.Contains(t, gw.contentClaims, contentClaim{xID, parentClaim, "refutes"})
	assert.Contains(t, gw.claimLinks, model.ClaimLink{
		SourceClaimID: parentClaim,
		TargetClaimID: childClaim,
		Stance:        model.StanceRefutes,
		Support:       0.6,
	})
}

func TestIngest_SiblingFailureContained(t *testing.T) {
	refs := []string{"https://r1.test/", "https://r2.test/", "https://r3.test/", "https://r4.test/", "https://r5.test/"}
	web := newFakeWeb(map[string]page{"https://a.test/": {refs: refs}})
	gw := newMemGateway()
	gw.failContent["https://r2.test/"] = true

	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{})

	id, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	require.NoError(t, err)
	assert.NotZero(t, id)

	for _, u := range refs {
		assert.Equal(t, 1, web.resolved(u), "attempted %s", u)
	}
	assert.Equal(t, []string{"https://a.test/", "https://r1.test/", "https://r3.test/", "https://r4.test/", "https://r5.test/"}, gw.storedURLs())
	assert.Len(t, gw.relations, 4)
}

func TestIngest_ConcurrentFanOut(t *testing.T) {
	var refs []string
	pages := map[string]page{}
	for i := 0; i < 8; i++ {
		u := fmt.Sprintf("https://r%d.test/", i)
		refs = append(refs, u)
		pages[u] = page{refs: []string{"https://shared.test/"}}
	}
	pages["https://a.test/"] = page{refs: refs}
	web := newFakeWeb(pages)
	gw := newMemGateway()

	c := newTestController(model.CrawlConfig{MaxDepth: 3, FanOut: 4, RecurseReferences: true}, web, gw, Options{})

	_, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	require.NoError(t, err)

	assert.Equal(t, 1, web.resolved("https://shared.test/"))
	assert.Len(t, gw.storedURLs(), 10)
}

func TestIngest_InvalidSeedIsFatal(t *testing.T) {
	web := newFakeWeb(nil)
	gw := newMemGateway()
	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{})

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "/relative/path"} {
		id, err := c.Ingest(context.Background(), raw, "", model.KindTask)
		assert.Zero(t, id)
		assert.True(t, errors.Is(err, fetch.ErrInvalidURL), "%q: %v", raw, err)
	}
	assert.Empty(t, web.counts)
}

func TestIngest_UnusableSeedIsSkipped(t *testing.T) {
	web := newFakeWeb(nil)
	web.fail["https://a.test/"] = fetch.ErrUnusable
	gw := newMemGateway()
	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{})

	id, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	assert.Zero(t, id)
	assert.True(t, errors.Is(err, ErrSkipped))
	assert.Empty(t, gw.storedURLs())
}

func TestIngest_SeedPersistenceFailureAbandonsChildren(t *testing.T) {
	web := newFakeWeb(map[string]page{"https://a.test/": {refs: []string{"https://b.test/"}}})
	gw := newMemGateway()
	gw.failContent["https://a.test/"] = true
	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{})

	id, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	assert.Zero(t, id)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Equal(t, 0, web.resolved("https://b.test/"))
}

func TestIngest_QueuesThumbnailJob(t *testing.T) {
	web := newFakeWeb(map[string]page{"https://a.test/": {image: "https://a.test/hero.jpg"}})
	gw := newMemGateway()
	q := &recordingQueue{}
	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{Queue: q})

	id, err := c.Ingest(context.Background(), "https://a.test/", "", model.KindTask)
	require.NoError(t, err)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, id, q.jobs[0].ContentID)
	assert.Equal(t, "https://a.test/hero.jpg", q.jobs[0].Image)
	assert.NotEmpty(t, q.jobs[0].RunID)
}

func TestIngest_CancelledContext(t *testing.T) {
	web := newFakeWeb(map[string]page{"https://a.test/": {}})
	gw := newMemGateway()
	c := newTestController(model.CrawlConfig{MaxDepth: 2}, web, gw, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := c.Ingest(ctx, "https://a.test/", "", model.KindTask)
	assert.Zero(t, id)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIngest_NonScrapableReferenceNeverFetched(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("binary"))
	}))
	defer srv.Close()

	resolver := fetch.NewResolver(model.ResolverConfig{}, fetch.NewFetcher(model.HTTPConfig{}), fetch.Options{})
	extractor := extract.NewExtractor(model.ExtractConfig{}, nil)
	gw := newMemGateway()
	c := NewController(model.CrawlConfig{MaxDepth: 2}, resolver, extractor, gw, Options{})

	target := srv.URL + "/media/interview.mp4"
	id, err := c.Ingest(context.Background(), target, "", model.KindReference)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	rec, ok := gw.stored(target)
	require.True(t, ok)
	assert.Equal(t, model.MediaVideo, rec.Media)
	assert.Empty(t, rec.Text)
}

func TestCrawlContext(t *testing.T) {
	cc := NewCrawlContext(2)
	assert.NotEmpty(t, cc.RunID)

	assert.True(t, cc.MarkVisited("https://a.test/page?utm_source=x"))
	assert.False(t, cc.MarkVisited("https://a.test/page/"))

	_, ok := cc.ID("https://a.test/page")
	assert.False(t, ok, "no id before persistence")

	cc.SetID("https://a.test/page", 9)
	id, ok := cc.ID("https://a.test/page#top")
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, 1, cc.Visited())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "mapping_evidence", StateMappingEvidence.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateSkipped.Terminal())
	assert.False(t, StatePersisting.Terminal())
}

func TestClosestClaim(t *testing.T) {
	id, ok := closestClaim("coffee lowers heart risk", map[string]int64{
		"Coffee intake and heart risk": 1,
		"Tea is popular":               2,
	})
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = closestClaim("coffee", map[string]int64{"tea leaves": 3})
	assert.False(t, ok)

	_, ok = closestClaim("coffee", nil)
	assert.False(t, ok)
}
