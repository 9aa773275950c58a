// Package pipeline wires configuration into a ready-to-use ingestion pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/analyze"
	"github.com/ppiankov/provenance/internal/cache"
	"github.com/ppiankov/provenance/internal/crawl"
	"github.com/ppiankov/provenance/internal/evidence"
	"github.com/ppiankov/provenance/internal/extract"
	"github.com/ppiankov/provenance/internal/fetch"
	"github.com/ppiankov/provenance/internal/llm"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/queue"
	"github.com/ppiankov/provenance/internal/store"
	"github.com/ppiankov/provenance/internal/util"
	"github.com/ppiankov/provenance/internal/worker"
)

// Pipeline owns every long-lived collaborator of an ingestion process
type Pipeline struct {
	controller *crawl.Controller
	resolver   *fetch.Resolver
	gateway    store.Gateway
	logger     *zap.Logger
}

// New builds the pipeline described by cfg. Semantic extraction and evidence
// mapping are switched off when no LLM provider is configured.
func New(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cache.New(cfg.Cache, logger)
	limiter := worker.NewLimiter(cfg.HTTP.RatePerDomain, cfg.HTTP.Burst)

	opts := fetch.Options{
		PDF:      fetch.NewPoppler(cfg.Resolver.PDFToText, cfg.Resolver.PDFInfo, cfg.Resolver.PDFToPPM, cfg.Resolver.PDFTimeout),
		Limiter:  limiter,
		Cache:    c,
		CacheTTL: cfg.Cache.DiskTTL,
		Logger:   logger,
	}
	if cfg.Resolver.RenderEnabled {
		opts.Renderer = fetch.NewRodRenderer(cfg.Resolver.ChromeBin, cfg.HTTP.UserAgent, logger)
	}
	if cfg.Resolver.BlueskyHost != "" {
		opts.Social = fetch.NewBlueskyResolver(cfg.Resolver.BlueskyHost)
	}
	if cfg.HTTP.RespectRobots {
		opts.Robots = util.NewRobotsChecker(util.NewHTTPClient(cfg.HTTP, cfg.HTTP.Timeout), cfg.HTTP.UserAgent, logger)
	}
	resolver := fetch.NewResolver(cfg.Resolver, fetch.NewFetcher(cfg.HTTP), opts)

	gateway, err := store.Open(cfg.Store, logger)
	if err != nil {
		_ = resolver.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	thumbs, err := queue.New(ctx, cfg.Queue, logger)
	if err != nil {
		_ = resolver.Close()
		_ = gateway.Close()
		return nil, fmt.Errorf("thumbnail queue: %w", err)
	}

	crawlOpts := crawl.Options{
		Queue:        thumbs,
		ThumbnailDir: cfg.Resolver.ThumbnailDir,
		Logger:       logger,
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	switch {
	case err != nil:
		logger.Warn("Semantic extraction disabled", zap.Error(err))
	case provider != nil:
		service := llm.NewService(provider, cfg.LLM.Model, c, cfg.Cache.DiskTTL, logger)
		crawlOpts.Analyzer = analyze.NewAnalyzer(service, cfg.LLM.ChunkTokens, logger)
		if cfg.Evidence.Enabled {
			search := evidence.NewDuckDuckGo(cfg.Evidence, cfg.HTTP, limiter, c, cfg.Cache.DiskTTL, logger)
			crawlOpts.Mapper = evidence.NewMapper(service, search, evidence.NewAuthorityClassifier(&cfg.Authority), cfg.Evidence, logger)
		}
	default:
		logger.Info("No LLM provider configured; claims and evidence are not extracted")
	}

	controller := crawl.NewController(cfg.Crawl, resolver, extract.NewExtractor(cfg.Extract, logger), gateway, crawlOpts)

	return &Pipeline{
		controller: controller,
		resolver:   resolver,
		gateway:    gateway,
		logger:     logger,
	}, nil
}

// Ingest runs one crawl from rawURL and returns the seed's content id
func (p *Pipeline) Ingest(ctx context.Context, rawURL, displayName string, kind model.ContentKind) (int64, error) {
	return p.controller.Ingest(ctx, rawURL, displayName, kind)
}

// IngestLive runs one crawl from a page whose HTML the caller already holds
func (p *Pipeline) IngestLive(ctx context.Context, rawURL, html, displayName string, kind model.ContentKind) (int64, error) {
	return p.controller.IngestLive(ctx, rawURL, html, displayName, kind)
}

// Close releases the headless browser and the database
func (p *Pipeline) Close() error {
	return errors.Join(p.resolver.Close(), p.gateway.Close())
}
