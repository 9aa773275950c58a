package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/provenance/internal/cache"
	"github.com/ppiankov/provenance/internal/model"
)

const ddgPage = `<html><body>
<div class="results">
  <div class="result results_links result--ad">
    <a class="result__a" href="https://duckduckgo.com/y.js?ad_provider=x&u3=https%3A%2F%2Fshop.test">Buy now</a>
  </div>
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.nih.gov%2Fnews%2Fcoffee&amp;rut=abc">Coffee and
        heart health | NIH</a>
    </h2>
    <a class="result__snippet" href="#">A large cohort study found lower risk.</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="https://blog.test/coffee">Why I love coffee</a>
    <div class="result__snippet">Personal blog.</div>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.nih.gov%2Fnews%2Fcoffee%23top">Duplicate</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=javascript%3Aalert(1)">Bad</a>
  </div>
</div>
</body></html>`

func TestParseDuckDuckGo(t *testing.T) {
	got, err := ParseDuckDuckGo([]byte(ddgPage))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []SearchResult{
		{URL: "https://www.nih.gov/news/coffee", Title: "Coffee and heart health | NIH", Snippet: "A large cohort study found lower risk."},
		{URL: "https://blog.test/coffee", Title: "Why I love coffee", Snippet: "Personal blog."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}
}

func TestDuckDuckGo_SearchCachesResults(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("q") != "coffee heart risk" {
			t.Errorf("Expected collapsed query, got %q", r.URL.Query().Get("q"))
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("Expected configured user agent, got %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer server.Close()

	searcher := NewDuckDuckGo(
		model.EvidenceConfig{SearchBaseURL: server.URL + "/html/", SearchTimeout: 5 * time.Second},
		model.HTTPConfig{UserAgent: "test-agent"},
		nil,
		cache.NewMemoryCache(time.Minute, time.Minute),
		time.Minute,
		nil,
	)

	results, err := searcher.Search(context.Background(), "  coffee   heart risk ", 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 1 || results[0].URL != "https://www.nih.gov/news/coffee" {
		t.Errorf("Expected the first result only, got %+v", results)
	}

	results, err = searcher.Search(context.Background(), "coffee heart risk", 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 cached results, got %d", len(results))
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 request, got %d", hits.Load())
	}
}

func TestDuckDuckGo_SearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	searcher := NewDuckDuckGo(model.EvidenceConfig{SearchBaseURL: server.URL, SearchTimeout: time.Second}, model.HTTPConfig{}, nil, nil, 0, nil)
	if _, err := searcher.Search(context.Background(), "anything", 5); err == nil {
		t.Fatal("Expected error for 429")
	}
}

func TestDecodeRedirect(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%3Fb%3D1&rut=x", "https://example.com/a?b=1"},
		{"https://example.org/page", "https://example.org/page"},
		{"https://duckduckgo.com/y.js?ad=1", ""},
		{"/relative/path", ""},
		{"mailto:someone@example.com", ""},
	}
	for _, tt := range tests {
		if got := decodeRedirect(tt.href); got != tt.want {
			t.Errorf("decodeRedirect(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
