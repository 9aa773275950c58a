// Package fetch turns a URL into renderable content through an ordered
// fallback chain: direct fetch, headless render, archived snapshot render,
// PDF text extraction. Every stage failure is soft; only a syntactically
// invalid URL is fatal.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/cache"
	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/util"
	"github.com/ppiankov/provenance/internal/worker"
)

// Options carries the optional collaborators of a Resolver. Nil members
// disable the stage or check they back.
type Options struct {
	Renderer Renderer
	PDF      PDFService
	Social   *BlueskyResolver
	Robots   *util.RobotsChecker
	Limiter  *worker.Limiter
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Resolver runs the fallback chain
type Resolver struct {
	cfg      model.ResolverConfig
	fetcher  *Fetcher
	renderer Renderer
	pdf      PDFService
	social   *BlueskyResolver
	robots   *util.RobotsChecker
	limiter  *worker.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewResolver creates a new Resolver
func NewResolver(cfg model.ResolverConfig, fetcher *Fetcher, opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 300
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 8 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 30 * time.Second
	}

	r := &Resolver{
		cfg:      cfg,
		fetcher:  fetcher,
		renderer: opts.Renderer,
		pdf:      opts.PDF,
		social:   opts.Social,
		robots:   opts.Robots,
		limiter:  opts.Limiter,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   opts.Logger.With(zap.String("component", "resolver")),
	}
	if !cfg.RenderEnabled {
		r.renderer = nil
	}
	return r
}

// Resolve returns content for rawURL. A chain that produces nothing usable
// returns a KindUnusable resolution together with ErrUnusable; the caller
// skips the node. ErrInvalidURL and context errors are the only other errors.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, strategy Strategy) (*Resolution, error) {
	target, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	res := &Resolution{URL: target, FinalURL: target, Media: heuristics.MediaKindForURL(target)}

	if heuristics.IsNonScrapable(target) {
		return r.placeholder(res, StagePlaceholder), nil
	}

	if live, ok := strategy.(LiveDom); ok && strings.TrimSpace(live.HTML) != "" {
		out, err := r.htmlResult(res, []byte(live.HTML), "text/html", target, StageLiveDOM)
		if err == nil {
			return out, nil
		}
		res.Attempts = append(res.Attempts, Attempt{Stage: StageLiveDOM, Err: err})
	}

	if r.social != nil && r.social.Matches(target) {
		out, err := r.resolveSocial(ctx, res)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Attempts = append(res.Attempts, Attempt{Stage: StageSocial, Err: err})
	}

	if out, ok := r.fromCache(res); ok {
		return out, nil
	}

	allowed := true
	if r.robots != nil {
		var delay time.Duration
		allowed, delay, _ = r.robots.CanFetch(ctx, target)
		if r.limiter != nil {
			r.limiter.ApplyCrawlDelay(target, delay)
		}
	}

	if allowed {
		contentType := r.probe(ctx, target)
		switch {
		case isMediaType(contentType):
			return r.placeholder(res, StageProbe), nil
		case isPDF(contentType, nil) || heuristics.Extension(target) == ".pdf":
			out, err := r.resolvePDF(ctx, res)
			if err == nil {
				r.store(out)
				return out, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Attempts = append(res.Attempts, Attempt{Stage: StagePDF, Err: err})
		}

		out, err := r.resolveDirect(ctx, res)
		if err == nil {
			r.store(out)
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Attempts = append(res.Attempts, Attempt{Stage: StageDirect, Err: err})

		out, err = r.resolveRendered(ctx, res, target, StageRender)
		if err == nil {
			r.store(out)
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Attempts = append(res.Attempts, Attempt{Stage: StageRender, Err: err})
	} else {
		res.Attempts = append(res.Attempts, Attempt{Stage: StageDirect, Err: ErrDisallowed})
	}

	if r.cfg.ArchiveEnabled && r.cfg.ArchiveBaseURL != "" {
		out, err := r.resolveRendered(ctx, res, r.cfg.ArchiveBaseURL+target, StageArchive)
		if err == nil {
			r.store(out)
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res.Attempts = append(res.Attempts, Attempt{Stage: StageArchive, Err: err})
	}

	res.Kind = KindUnusable
	fields := []zap.Field{zap.String("url", target)}
	for _, a := range res.Attempts {
		fields = append(fields, zap.NamedError(string(a.Stage), a.Err))
	}
	r.logger.Warn("all stages failed", fields...)
	return res, ErrUnusable
}

// ValidateURL accepts absolute http(s) URLs with a host; anything else wraps ErrInvalidURL
func ValidateURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return trimmed, nil
}

func (r *Resolver) placeholder(res *Resolution, stage Stage) *Resolution {
	res.Kind = KindPlaceholder
	res.Stage = stage
	if res.Media == model.MediaWeb {
		res.Media = model.MediaDocument
	}
	r.logger.Debug("placeholder for non-scrapable url", zap.String("url", res.URL), zap.String("media", string(res.Media)))
	return res
}

func (r *Resolver) probe(ctx context.Context, target string) string {
	if r.fetcher == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()
	return r.fetcher.Probe(ctx, target)
}

func (r *Resolver) resolveSocial(ctx context.Context, res *Resolution) (*Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	body, err := r.social.Resolve(ctx, res.URL)
	if err != nil {
		return nil, err
	}
	out := *res
	out.Kind = KindHTML
	out.Stage = StageSocial
	out.Body = body
	out.ContentType = "text/html"
	return &out, nil
}

func (r *Resolver) resolveDirect(ctx context.Context, res *Resolution) (*Resolution, error) {
	if r.fetcher == nil {
		return nil, errors.New("direct fetching disabled")
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, res.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	fetched, err := r.fetcher.FetchWithRetry(ctx, res.URL, "")
	if err != nil {
		return nil, err
	}

	if isPDF(fetched.ContentType, fetched.Body) {
		out := *res
		out.FinalURL = fetched.FinalURL
		return r.pdfResult(ctx, &out, fetched.Body)
	}
	if isMediaType(fetched.ContentType) {
		return r.placeholder(res, StageDirect), nil
	}
	if LooksLikeFeed(fetched.ContentType, fetched.Body) {
		return nil, errors.New("body is a syndication feed")
	}

	return r.htmlResult(res, fetched.Body, fetched.ContentType, fetched.FinalURL, StageDirect)
}

func (r *Resolver) resolveRendered(ctx context.Context, res *Resolution, renderURL string, stage Stage) (*Resolution, error) {
	if r.renderer == nil {
		return nil, errNoRenderer
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, renderURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	body, err := r.renderer.Render(ctx, renderURL)
	if err != nil {
		return nil, err
	}
	return r.htmlResult(res, []byte(body), "text/html", res.FinalURL, stage)
}

func (r *Resolver) resolvePDF(ctx context.Context, res *Resolution) (*Resolution, error) {
	if r.fetcher == nil {
		return nil, errors.New("direct fetching disabled")
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, res.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	timeout := r.cfg.PDFTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetched, err := r.fetcher.FetchDocument(fetchCtx, res.URL)
	if err != nil {
		return nil, err
	}
	if !isPDF(fetched.ContentType, fetched.Body) {
		// Mislabelled; let the HTML stages handle it
		return nil, fmt.Errorf("expected pdf, got %q", fetched.ContentType)
	}

	out := *res
	out.FinalURL = fetched.FinalURL
	return r.pdfResult(ctx, &out, fetched.Body)
}

func (r *Resolver) pdfResult(ctx context.Context, res *Resolution, data []byte) (*Resolution, error) {
	if r.pdf == nil {
		return nil, errors.New("pdf extraction disabled")
	}

	doc, err := r.pdf.ExtractText(ctx, data)
	if err != nil {
		return nil, err
	}
	if TextLength(doc.Text) < r.cfg.MinTextChars {
		return nil, fmt.Errorf("%w: pdf text %d chars", ErrThinContent, TextLength(doc.Text))
	}

	res.Kind = KindPDF
	res.Stage = StagePDF
	res.Body = data
	res.ContentType = "application/pdf"
	res.PDF = doc
	res.Media = model.MediaDocument
	res.Retracted = heuristics.LooksRetracted(doc.Title, leading(doc.Text, 400))

	thumb, err := r.pdf.RasterizeFirstPage(ctx, data)
	if err != nil {
		r.logger.Debug("pdf thumbnail failed", zap.String("url", res.URL), zap.Error(err))
	} else {
		res.Thumbnail = thumb
	}

	return res, nil
}

// htmlResult strips consent overlays and accepts the body only if its visible
// text reaches the threshold
func (r *Resolver) htmlResult(res *Resolution, body []byte, contentType, finalURL string, stage Stage) (*Resolution, error) {
	body = StripConsent(body)
	text := VisibleText(body)

	if n := TextLength(text); n < r.cfg.MinTextChars && stage != StageSocial {
		return nil, fmt.Errorf("%w: %d chars", ErrThinContent, n)
	}

	out := *res
	out.Kind = KindHTML
	out.Stage = stage
	out.Body = body
	out.ContentType = contentType
	if finalURL != "" {
		out.FinalURL = finalURL
	}
	out.Retracted = heuristics.LooksRetracted(HTMLTitle(body), leading(text, 400))
	r.logger.Debug("resolved", zap.String("url", res.URL), zap.String("stage", string(stage)), zap.Int("bytes", len(body)))
	return &out, nil
}

func leading(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

type cachedResolution struct {
	Kind        Kind         `json:"kind"`
	FinalURL    string       `json:"final_url"`
	Stage       Stage        `json:"stage"`
	ContentType string       `json:"content_type"`
	Body        []byte       `json:"body"`
	Retracted   bool         `json:"retracted"`
	PDF         *PDFDocument `json:"pdf,omitempty"`
	Thumbnail   []byte       `json:"thumbnail,omitempty"`
}

func (r *Resolver) cacheKey(target string) string {
	return cache.Key(cache.NamespaceBody, heuristics.NormalizeURL(target))
}

func (r *Resolver) fromCache(res *Resolution) (*Resolution, bool) {
	var c cachedResolution
	if !cache.GetJSON(r.cache, r.cacheKey(res.URL), &c) {
		return nil, false
	}
	out := *res
	out.Kind = c.Kind
	out.FinalURL = c.FinalURL
	out.Stage = StageCache
	out.ContentType = c.ContentType
	out.Body = c.Body
	out.Retracted = c.Retracted
	out.PDF = c.PDF
	out.Thumbnail = c.Thumbnail
	if c.Kind == KindPDF {
		out.Media = model.MediaDocument
	}
	r.logger.Debug("cache hit", zap.String("url", res.URL), zap.String("original_stage", string(c.Stage)))
	return &out, true
}

func (r *Resolver) store(res *Resolution) {
	if !res.Usable() {
		return
	}
	err := cache.SetJSON(r.cache, r.cacheKey(res.URL), cachedResolution{
		Kind:        res.Kind,
		FinalURL:    res.FinalURL,
		Stage:       res.Stage,
		ContentType: res.ContentType,
		Body:        res.Body,
		Retracted:   res.Retracted,
		PDF:         res.PDF,
		Thumbnail:   res.Thumbnail,
	}, r.cacheTTL)
	if err != nil {
		r.logger.Debug("cache write failed", zap.String("url", res.URL), zap.Error(err))
	}
}

// Close releases the headless browser
func (r *Resolver) Close() error {
	if r.renderer == nil {
		return nil
	}
	return r.renderer.Close()
}
