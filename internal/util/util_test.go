package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/provenance/internal/model"
)

func TestRobotsChecker_DisallowedPath(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private\nCrawl-delay: 2\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "provenance/1.0", nil)

	allowed, delay, err := checker.CanFetch(context.Background(), server.URL+"/private/page")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if allowed {
		t.Error("Expected /private to be disallowed")
	}
	if delay != 2*time.Second {
		t.Errorf("Expected crawl delay 2s, got %v", delay)
	}

	if !checker.Allowed(context.Background(), server.URL+"/public") {
		t.Error("Expected /public to be allowed")
	}
	if hits.Load() != 1 {
		t.Errorf("Expected robots.txt to be fetched once, got %d", hits.Load())
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "provenance/1.0", nil)
	if !checker.Allowed(context.Background(), server.URL+"/anything") {
		t.Error("Expected missing robots.txt to allow")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	if got := NormalizeUserAgent("provenance/1.0 (+https://example.com)"); got != "provenance" {
		t.Errorf("Expected 'provenance', got %q", got)
	}
}

func TestNewProxyFunc_NoProxyBypass(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "internal.test, .corp")

	req := &http.Request{URL: &url.URL{Scheme: "http", Host: "api.internal.test"}}
	got, err := proxy(req)
	if err != nil || got != nil {
		t.Errorf("Expected bypass, got %v (%v)", got, err)
	}

	req = &http.Request{URL: &url.URL{Scheme: "http", Host: "example.com"}}
	got, err = proxy(req)
	if err != nil || got == nil || got.Host != "proxy.local:3128" {
		t.Errorf("Expected proxy, got %v (%v)", got, err)
	}
}

func TestNewHTTPClient_RedirectCap(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	client := NewHTTPClient(model.HTTPConfig{}, 5*time.Second)
	resp, err := client.Get(server.URL + "/")
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("Expected redirect loop to fail")
	}
}
