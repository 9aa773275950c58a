package crawl

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ppiankov/provenance/internal/heuristics"
)

// CrawlContext is the per-run state shared by every node of one crawl.
// It lives for a single Ingest call and is never persisted.
type CrawlContext struct {
	RunID    string
	MaxDepth int

	mu      sync.Mutex
	visited map[string]int64 // normalized URL -> content id, 0 until persisted
}

// NewCrawlContext creates a new CrawlContext
func NewCrawlContext(maxDepth int) *CrawlContext {
	return &CrawlContext{
		RunID:    uuid.NewString(),
		MaxDepth: maxDepth,
		visited:  make(map[string]int64),
	}
}

// MarkVisited records rawURL and reports whether this call was the first
func (c *CrawlContext) MarkVisited(rawURL string) bool {
	key := heuristics.NormalizeURL(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.visited[key]; ok {
		return false
	}
	c.visited[key] = 0
	return true
}

// SetID attaches the persisted content id to a visited URL
func (c *CrawlContext) SetID(rawURL string, id int64) {
	key := heuristics.NormalizeURL(rawURL)
	c.mu.Lock()
	c.visited[key] = id
	c.mu.Unlock()
}

// ID returns the content id stored for rawURL, if it has been persisted
func (c *CrawlContext) ID(rawURL string) (int64, bool) {
	key := heuristics.NormalizeURL(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.visited[key]
	return id, ok && id != 0
}

// Visited returns the number of distinct URLs seen in this run
func (c *CrawlContext) Visited() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.visited)
}
