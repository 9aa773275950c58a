// Package crawl drives one ingestion run: resolve, extract, analyze, map
// evidence, persist, then recurse into the merged references.
package crawl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/provenance/internal/analyze"
	"github.com/ppiankov/provenance/internal/evidence"
	"github.com/ppiankov/provenance/internal/extract"
	"github.com/ppiankov/provenance/internal/fetch"
	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/queue"
	"github.com/ppiankov/provenance/internal/store"
)

var (
	// ErrSkipped means a node produced nothing usable and was left out
	ErrSkipped = errors.New("node skipped")

	// ErrPersistence means a node could not be written; its children are abandoned
	ErrPersistence = errors.New("persistence failed")

	errAlreadyVisited = errors.New("already visited")
)

// Resolver fetches a URL through the fallback chain
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, strategy fetch.Strategy) (*fetch.Resolution, error)
}

// Extractor turns a resolution into content metadata
type Extractor interface {
	Extract(res *fetch.Resolution, rawURL, nameHint string) (*extract.Extraction, error)
}

// Analyzer extracts topics and claims from text
type Analyzer interface {
	Analyze(ctx context.Context, text string, hints []string) (*analyze.Analysis, error)
}

// EvidenceMapper finds sources for claims
type EvidenceMapper interface {
	MapClaimsToEvidence(ctx context.Context, sourceText string, claims []string) (*evidence.Map, error)
}

// Options carries the optional collaborators of a Controller
type Options struct {
	Analyzer     Analyzer       // nil disables claim extraction
	Mapper       EvidenceMapper // nil disables evidence mapping
	Queue        queue.ThumbnailQueue
	ThumbnailDir string // where PDF first-page rasters are written; empty disables
	Logger       *zap.Logger
}

// Controller is the crawl controller
type Controller struct {
	cfg          model.CrawlConfig
	resolver     Resolver
	extractor    Extractor
	gateway      store.Gateway
	analyzer     Analyzer
	mapper       EvidenceMapper
	queue        queue.ThumbnailQueue
	thumbnailDir string
	logger       *zap.Logger
}

// NewController creates a new Controller
func NewController(cfg model.CrawlConfig, resolver Resolver, extractor Extractor, gateway store.Gateway, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Queue == nil {
		opts.Queue = queue.NopQueue{}
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = 1
	}
	return &Controller{
		cfg:          cfg,
		resolver:     resolver,
		extractor:    extractor,
		gateway:      gateway,
		analyzer:     opts.Analyzer,
		mapper:       opts.Mapper,
		queue:        opts.Queue,
		thumbnailDir: opts.ThumbnailDir,
		logger:       opts.Logger.With(zap.String("component", "crawl")),
	}
}

// node is one unit of work in the recursion
type node struct {
	url      string
	name     string
	kind     model.ContentKind
	depth    int
	strategy fetch.Strategy
}

// result is what a finished node hands back to its parent
type result struct {
	id     int64
	claims map[string]int64 // claim key -> claim id
}

// Ingest crawls rawURL and everything reachable from it within the configured
// depth. It returns the content id of the seed; a zero id always comes with
// an error.
func (c *Controller) Ingest(ctx context.Context, rawURL, displayName string, kind model.ContentKind) (int64, error) {
	return c.ingest(ctx, rawURL, displayName, kind, fetch.RemoteFetch{})
}

// IngestLive is Ingest for a page whose DOM the caller already holds
func (c *Controller) IngestLive(ctx context.Context, rawURL, html, displayName string, kind model.ContentKind) (int64, error) {
	return c.ingest(ctx, rawURL, displayName, kind, fetch.LiveDom{HTML: html})
}

func (c *Controller) ingest(ctx context.Context, rawURL, displayName string, kind model.ContentKind, strategy fetch.Strategy) (int64, error) {
	target, err := fetch.ValidateURL(rawURL)
	if err != nil {
		return 0, err
	}
	if kind == "" {
		kind = model.KindTask
	}

	cc := NewCrawlContext(c.cfg.MaxDepth)
	logger := c.logger.With(zap.String("run_id", cc.RunID))
	logger.Info("Crawl started", zap.String("url", target), zap.String("kind", string(kind)), zap.Int("max_depth", cc.MaxDepth))

	res, err := c.visit(ctx, cc, node{url: target, name: displayName, kind: kind, strategy: strategy}, logger)
	logger.Info("Crawl finished", zap.String("url", target), zap.Int("visited", cc.Visited()), zap.Error(err))
	if err != nil {
		return 0, err
	}
	return res.id, nil
}

func (c *Controller) transition(logger *zap.Logger, n node, s State) {
	logger.Debug("State",
		zap.String("url", n.url),
		zap.Int("depth", n.depth),
		zap.Stringer("state", s))
}

// visit runs the state machine for one node
func (c *Controller) visit(ctx context.Context, cc *CrawlContext, n node, logger *zap.Logger) (*result, error) {
	c.transition(logger, n, StateStart)
	if !cc.MarkVisited(n.url) {
		id, _ := cc.ID(n.url)
		return &result{id: id}, errAlreadyVisited
	}
	if n.strategy == nil {
		n.strategy = fetch.RemoteFetch{}
	}

	c.transition(logger, n, StateFetchingSeed)
	res, err := c.resolver.Resolve(ctx, n.url, n.strategy)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, fetch.ErrInvalidURL) {
			return nil, err
		}
		return nil, c.skip(logger, n, err)
	}

	c.transition(logger, n, StateExtractingSeed)
	ext, err := c.extractor.Extract(res, n.url, n.name)
	if err != nil {
		return nil, c.skip(logger, n, err)
	}
	record := newRecord(n, res, ext)

	expand := n.depth < cc.MaxDepth && (n.kind == model.KindTask || c.cfg.RecurseReferences)

	if c.analyzer != nil && record.Text != "" && (n.kind == model.KindTask || c.cfg.AnalyzeReferences) {
		c.transition(logger, n, StateExtractingClaims)
		analysis, err := c.analyzer.Analyze(ctx, record.Text, extract.TestimonialHints(record.Text))
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.Warn("Claim extraction failed", zap.String("url", n.url), zap.Error(err))
		default:
			record.Topic = analysis.GeneralTopic
			record.Subtopics = analysis.SpecificTopics
			record.Claims = analysis.Claims
		}
	}

	refs := model.NewReferenceSet(heuristics.NormalizeURL)
	for _, ref := range ext.References {
		refs.Add(ref)
	}

	if c.mapper != nil && expand && len(record.Claims) > 0 {
		c.transition(logger, n, StateMappingEvidence)
		texts := make([]string, len(record.Claims))
		for i, claim := range record.Claims {
			texts[i] = claim.Text
		}
		evidenceMap, err := c.mapper.MapClaimsToEvidence(ctx, record.Text, texts)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.Warn("Evidence mapping failed", zap.String("url", n.url), zap.Error(err))
		default:
			for _, link := range evidenceMap.Links() {
				refs.Add(link)
			}
		}
	}
	record.References = refs.Links()

	if len(res.Thumbnail) > 0 && c.thumbnailDir != "" {
		if ref, err := saveThumbnail(c.thumbnailDir, record.URL, res.Thumbnail); err != nil {
			logger.Warn("Thumbnail not saved", zap.String("url", n.url), zap.Error(err))
		} else {
			record.SetThumbnail(ref)
		}
	}

	c.transition(logger, n, StatePersisting)
	out, err := c.persist(ctx, record, logger)
	if err != nil {
		c.transition(logger, n, StateFailed)
		logger.Error("Persisting content failed", zap.String("url", n.url), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrPersistence, n.url, err)
	}
	cc.SetID(n.url, out.id)

	if record.Image != "" && record.Thumbnail == "" {
		job := queue.ThumbnailJob{ContentID: out.id, URL: record.URL, Image: record.Image, RunID: cc.RunID}
		if err := c.queue.Enqueue(ctx, job); err != nil {
			logger.Warn("Thumbnail job not queued", zap.Int64("content_id", out.id), zap.Error(err))
		}
	}

	if expand && refs.Len() > 0 {
		c.transition(logger, n, StateRecursingChildren)
		if err := c.recurse(ctx, cc, n, out, record.References, logger); err != nil {
			return nil, err
		}
	}

	c.transition(logger, n, StateDone)
	return out, nil
}

func (c *Controller) skip(logger *zap.Logger, n node, err error) error {
	c.transition(logger, n, StateSkipped)
	logger.Info("Node skipped", zap.String("url", n.url), zap.Int("depth", n.depth), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", ErrSkipped, n.url, err)
}

// recurse ingests every reference of parent as a child node. A failing child
// never stops its siblings; only cancellation of ctx does.
func (c *Controller) recurse(ctx context.Context, cc *CrawlContext, parent node, parentResult *result, refs []model.ReferenceLink, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.FanOut)

	for _, ref := range refs {
		g.Go(func() error {
			child := node{url: ref.URL, name: ref.Title, kind: model.KindReference, depth: parent.depth + 1}
			res, err := c.visit(gctx, cc, child, logger)
			switch {
			case errors.Is(err, errAlreadyVisited):
				if res.id == 0 {
					return nil
				}
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("Child not ingested",
					zap.String("parent", parent.url),
					zap.String("url", ref.URL),
					zap.Error(err))
				return nil
			}
			c.linkChild(gctx, parentResult, res, ref, logger)
			return nil
		})
	}
	return g.Wait()
}

// linkChild records the parent->child relation and the evidence edges the
// mapper attached to the reference
func (c *Controller) linkChild(ctx context.Context, parent, child *result, ref model.ReferenceLink, logger *zap.Logger) {
	if err := c.gateway.LinkContentRelation(ctx, parent.id, child.id, ref.Origin == model.OriginClaim); err != nil {
		logger.Warn("Relation not linked", zap.Int64("parent_id", parent.id), zap.Int64("child_id", child.id), zap.Error(err))
		return
	}

	for _, claim := range ref.Claims {
		parentClaimID, ok := parent.claims[model.ClaimKey(claim)]
		if !ok {
			continue
		}
		assessment, _ := ref.Assessment(claim)
		stance := model.ParseStance(string(assessment.Stance))

		if err := c.gateway.LinkContentClaim(ctx, child.id, parentClaimID, string(stance)); err != nil {
			logger.Warn("Evidence not linked", zap.Int64("content_id", child.id), zap.Int64("claim_id", parentClaimID), zap.Error(err))
			continue
		}

		targetID, ok := closestClaim(claim, child.claims)
		if !ok {
			continue
		}
		link := model.ClaimLink{
			SourceClaimID: parentClaimID,
			TargetClaimID: targetID,
			Stance:        stance,
			Support:       assessment.Confidence,
		}
		if err := c.gateway.UpsertClaimLink(ctx, link); err != nil {
			logger.Warn("Claim link not stored", zap.Int64("source", parentClaimID), zap.Int64("target", targetID), zap.Error(err))
		}
	}
}

// closestClaim picks the child claim sharing the most terms with claim
func closestClaim(claim string, candidates map[string]int64) (int64, bool) {
	var (
		bestID    int64
		bestScore float64
		bestKey   string
	)
	for key, id := range candidates {
		score := heuristics.Overlap(claim, key)
		// ties go to the lexically smaller key so the choice is stable
		if score > bestScore || (score == bestScore && score > 0 && key < bestKey) {
			bestID, bestScore, bestKey = id, score, key
		}
	}
	return bestID, bestScore > 0
}

func newRecord(n node, res *fetch.Resolution, ext *extract.Extraction) *model.ContentRecord {
	media := ext.Media
	if media == "" {
		media = res.Media
	}
	return &model.ContentRecord{
		URL:       n.url,
		Kind:      n.kind,
		Name:      ext.Title,
		Text:      ext.Text,
		Media:     media,
		Image:     ext.Image,
		Retracted: ext.Retracted || res.Retracted,
		Authors:   ext.Authors,
		Publisher: ext.Publisher,
	}
}
