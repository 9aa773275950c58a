package evidence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/cache"
	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/util"
	"github.com/ppiankov/provenance/internal/worker"
)

// SearchResult is one organic web search hit
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher runs web searches
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// DuckDuckGo searches the DuckDuckGo HTML endpoint
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewDuckDuckGo creates a new DuckDuckGo searcher; limiter and c may be nil
func NewDuckDuckGo(cfg model.EvidenceConfig, httpCfg model.HTTPConfig, limiter *worker.Limiter, c cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *DuckDuckGo {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.Nop{}
	}
	baseURL := cfg.SearchBaseURL
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com/html/"
	}
	return &DuckDuckGo{
		baseURL:    baseURL,
		httpClient: util.NewHTTPClient(httpCfg, cfg.SearchTimeout),
		userAgent:  httpCfg.UserAgent,
		limiter:    limiter,
		cache:      c,
		cacheTTL:   cacheTTL,
		logger:     logger.With(zap.String("component", "search")),
	}
}

// Search returns up to limit organic results for query
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = heuristics.CollapseSpace(query)
	if query == "" {
		return nil, nil
	}

	key := cache.Key(cache.NamespaceSearch, d.baseURL, query)
	var cached []SearchResult
	if cache.GetJSON(d.cache, key, &cached) {
		return truncateResults(cached, limit), nil
	}

	searchURL := d.baseURL + "?q=" + url.QueryEscape(query)
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, searchURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	results, err := ParseDuckDuckGo(body)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("search complete", zap.String("query", query), zap.Int("results", len(results)))

	if len(results) > 0 {
		if err := cache.SetJSON(d.cache, key, results, d.cacheTTL); err != nil {
			d.logger.Warn("search cache write failed", zap.Error(err))
		}
	}
	return truncateResults(results, limit), nil
}

// ParseDuckDuckGo extracts organic results from a DuckDuckGo HTML page,
// decoding redirect links and skipping ads
func ParseDuckDuckGo(body []byte) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var results []SearchResult
	seen := make(map[string]bool)
	doc.Find("div.result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		target := decodeRedirect(href)
		if target == "" {
			return
		}
		key := heuristics.NormalizeURL(target)
		if seen[key] {
			return
		}
		seen[key] = true

		results = append(results, SearchResult{
			URL:     target,
			Title:   heuristics.CollapseSpace(link.Text()),
			Snippet: heuristics.CollapseSpace(s.Find(".result__snippet").First().Text()),
		})
	})
	return results, nil
}

// decodeRedirect unwraps //duckduckgo.com/l/?uddg=... links. Links that stay
// on duckduckgo.com (ads, internal pages) are dropped.
func decodeRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	if strings.HasSuffix(parsed.Hostname(), "duckduckgo.com") {
		target := parsed.Query().Get("uddg")
		if target == "" {
			return ""
		}
		parsed, err = url.Parse(target)
		if err != nil {
			return ""
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if strings.HasSuffix(parsed.Hostname(), "duckduckgo.com") {
		return ""
	}
	return parsed.String()
}

func truncateResults(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}
