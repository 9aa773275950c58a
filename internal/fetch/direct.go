package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/util"
)

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = time.Sleep

const fetchAttempts = 3

// Fetcher performs direct HTTP fetches with browser-like headers
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	referer    string
	maxBytes   int64
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(cfg model.HTTPConfig) *Fetcher {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5_000_000
	}
	return &Fetcher{
		httpClient: util.NewHTTPClient(cfg, cfg.Timeout),
		userAgent:  cfg.UserAgent,
		referer:    cfg.Referer,
		maxBytes:   maxBytes,
	}
}

// FetchResult is a successful direct fetch
type FetchResult struct {
	Body        []byte
	ContentType string // Media type without parameters
	FinalURL    string
	StatusCode  int
}

// Fetch retrieves the URL once
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, accept string) (*FetchResult, error) {
	return f.fetch(ctx, rawURL, accept, f.maxBytes)
}

// FetchWithRetry retries transient failures with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string, accept string) (*FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			fetchSleepFunc(time.Duration(1<<(attempt-1)) * 500 * time.Millisecond)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}

		result, err := f.Fetch(ctx, rawURL, accept)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// FetchDocument fetches a binary document (PDF) with a larger size allowance
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*FetchResult, error) {
	return f.fetch(ctx, rawURL, "application/pdf,*/*;q=0.8", f.maxBytes*4)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, accept string, limit int64) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	f.setHeaders(req, accept)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{
		Body:        body,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
	}, nil
}

// Probe issues a HEAD request and returns the media type, or "" when the
// server does not answer HEAD usefully
func (f *Fetcher) Probe(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return ""
	}
	f.setHeaders(req, "*/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ""
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}
	return mediaType(resp.Header.Get("Content-Type"))
}

func (f *Fetcher) setHeaders(req *http.Request, accept string) {
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mt
}

// isPDF sniffs PDFs by media type or magic bytes
func isPDF(contentType string, body []byte) bool {
	if contentType == "application/pdf" || contentType == "application/x-pdf" {
		return true
	}
	return len(body) >= 5 && string(body[:5]) == "%PDF-"
}

// isMediaType reports content types that carry no extractable text
func isMediaType(contentType string) bool {
	for _, prefix := range []string{"image/", "video/", "audio/", "font/"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	switch contentType {
	case "application/zip", "application/octet-stream", "application/x-tar", "application/gzip",
		"application/vnd.ms-excel", "application/msword", "application/vnd.ms-powerpoint":
		return true
	}
	return strings.HasPrefix(contentType, "application/vnd.openxmlformats-officedocument")
}
