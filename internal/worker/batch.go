package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
)

// Ingester runs one crawl for a seed URL
type Ingester interface {
	Ingest(ctx context.Context, url, displayName string, kind model.ContentKind) (int64, error)
}

// IngestJob is one independent crawl run
type IngestJob struct {
	URL      string
	Kind     model.ContentKind
	Ingester Ingester
}

// Execute executes the crawl run
func (j *IngestJob) Execute(ctx context.Context) Result {
	start := time.Now()
	id, err := j.Ingester.Ingest(ctx, j.URL, "", j.Kind)
	return &IngestResult{
		URL:       j.URL,
		ContentID: id,
		Duration:  time.Since(start),
		Error:     err,
	}
}

// IngestResult is the outcome of one crawl run; ContentID is 0 on failure
type IngestResult struct {
	URL       string
	ContentID int64
	Duration  time.Duration
	Error     error
}

// GetError returns the error from the run
func (r *IngestResult) GetError() error {
	return r.Error
}

// BatchProcessor ingests many seeds concurrently. Runs share nothing but the
// persistence gateway behind the Ingester.
type BatchProcessor struct {
	ingester    Ingester
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(ingester Ingester, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		ingester:    ingester,
		concurrency: concurrency,
		logger:      logger.With(zap.String("component", "batch")),
	}
}

// ProcessURLs ingests every URL as a task and returns results in input order
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*IngestResult {
	if len(urls) == 0 {
		return []*IngestResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, u := range urls {
		if !pool.Submit(&IngestJob{URL: u, Kind: model.KindTask, Ingester: b.ingester}) {
			b.logger.Warn("batch cancelled before all seeds were submitted", zap.String("url", u))
			break
		}
	}

	byURL := make(map[string]*IngestResult, len(urls))
	for _, result := range pool.Wait() {
		r := result.(*IngestResult)
		byURL[r.URL] = r
		if r.Error != nil {
			b.logger.Warn("seed failed", zap.String("url", r.URL), zap.Error(r.Error))
		} else {
			b.logger.Info("seed ingested", zap.String("url", r.URL), zap.Int64("content_id", r.ContentID), zap.Duration("took", r.Duration))
		}
	}

	ordered := make([]*IngestResult, 0, len(urls))
	for _, u := range urls {
		if r, ok := byURL[u]; ok {
			ordered = append(ordered, r)
			continue
		}
		ordered = append(ordered, &IngestResult{URL: u, Error: fmt.Errorf("not run: %w", context.Cause(ctx))})
	}
	return ordered
}

// ProcessFile reads seeds from a file and ingests them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*IngestResult, error) {
	urls, err := ReadURLsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read URLs: %w", err)
	}

	return b.ProcessURLs(ctx, urls), nil
}

// ReadURLsFromFile reads seed URLs (one per line), skipping blanks and
// comments and dropping duplicates by normalized URL
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key := heuristics.NormalizeURL(line)
		if !seen[key] {
			seen[key] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return urls, nil
}
