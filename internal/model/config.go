package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Resolver  ResolverConfig  `yaml:"resolver" mapstructure:"resolver"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Evidence  EvidenceConfig  `yaml:"evidence" mapstructure:"evidence"`
	Authority AuthorityConfig `yaml:"authority" mapstructure:"authority"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
}

// HTTPConfig controls direct fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Referer       string        `yaml:"referer" mapstructure:"referer"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RatePerDomain float64       `yaml:"rate_per_domain" mapstructure:"rate_per_domain"` // requests per second
	Burst         int           `yaml:"burst" mapstructure:"burst"`
}

// ResolverConfig controls the fallback chain
type ResolverConfig struct {
	MinTextChars   int           `yaml:"min_text_chars" mapstructure:"min_text_chars"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	RenderTimeout  time.Duration `yaml:"render_timeout" mapstructure:"render_timeout"`
	RenderEnabled  bool          `yaml:"render_enabled" mapstructure:"render_enabled"`
	ArchiveEnabled bool          `yaml:"archive_enabled" mapstructure:"archive_enabled"`
	ArchiveBaseURL string        `yaml:"archive_base_url" mapstructure:"archive_base_url"`
	ChromeBin      string        `yaml:"chrome_bin,omitempty" mapstructure:"chrome_bin"`
	PDFTimeout     time.Duration `yaml:"pdf_timeout" mapstructure:"pdf_timeout"`
	PDFToText      string        `yaml:"pdftotext" mapstructure:"pdftotext"`
	PDFInfo        string        `yaml:"pdfinfo" mapstructure:"pdfinfo"`
	PDFToPPM       string        `yaml:"pdftoppm" mapstructure:"pdftoppm"`
	ThumbnailDir   string        `yaml:"thumbnail_dir" mapstructure:"thumbnail_dir"`
	BlueskyHost    string        `yaml:"bluesky_host" mapstructure:"bluesky_host"`
}

// ExtractConfig controls content extraction
type ExtractConfig struct {
	MaxReferences  int `yaml:"max_references" mapstructure:"max_references"`
	MinTitleLength int `yaml:"min_title_length" mapstructure:"min_title_length"`
}

// LLMConfig configures the semantic extraction service
type LLMConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"` // openai, openrouter, anthropic, ollama
	Model       string `yaml:"model" mapstructure:"model"`
	APIKey      string `yaml:"-" mapstructure:"api_key"` // Never written to config files
	BaseURL     string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	ChunkTokens int    `yaml:"chunk_tokens" mapstructure:"chunk_tokens"` // input budget per call
}

// EvidenceConfig controls claim-to-evidence mapping
type EvidenceConfig struct {
	Enabled            bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxQueriesPerClaim int           `yaml:"max_queries_per_claim" mapstructure:"max_queries_per_claim"`
	ResultsPerQuery    int           `yaml:"results_per_query" mapstructure:"results_per_query"`
	CandidatesPerClaim int           `yaml:"candidates_per_claim" mapstructure:"candidates_per_claim"`
	MaxSourcesPerClaim int           `yaml:"max_sources_per_claim" mapstructure:"max_sources_per_claim"`
	MaxClaims          int           `yaml:"max_claims" mapstructure:"max_claims"`
	SearchTimeout      time.Duration `yaml:"search_timeout" mapstructure:"search_timeout"`
	SearchBaseURL      string        `yaml:"search_base_url" mapstructure:"search_base_url"`
	SearchWorkers      int           `yaml:"search_workers" mapstructure:"search_workers"`
}

// AuthorityConfig classifies evidence domains for ranking
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
}

// PathPattern assigns a tier to URLs whose path matches a regular expression
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier"` // primary, secondary, tertiary
}

// CrawlConfig bounds the recursive crawl
type CrawlConfig struct {
	MaxDepth          int  `yaml:"max_depth" mapstructure:"max_depth"`
	FanOut            int  `yaml:"fan_out" mapstructure:"fan_out"` // concurrent children per node, 1 = sequential
	RecurseReferences bool `yaml:"recurse_references" mapstructure:"recurse_references"`
	AnalyzeReferences bool `yaml:"analyze_references" mapstructure:"analyze_references"`
}

// StoreConfig selects the persistence gateway
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresDSN string `yaml:"-" mapstructure:"postgres_dsn"`
}

// CacheConfig controls caching of resolved bodies and semantic responses
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// QueueConfig configures the thumbnail back-fill queue
type QueueConfig struct {
	ThumbnailQueueURL string `yaml:"thumbnail_queue_url,omitempty" mapstructure:"thumbnail_queue_url"`
	Region            string `yaml:"region,omitempty" mapstructure:"region"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".provenance")

	return &Config{
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			Referer:       "https://www.google.com/",
			MaxBodyBytes:  5_000_000,
			RespectRobots: true,
			RatePerDomain: 1,
			Burst:         2,
		},
		Resolver: ResolverConfig{
			MinTextChars:   300,
			ProbeTimeout:   8 * time.Second,
			RenderTimeout:  30 * time.Second,
			RenderEnabled:  true,
			ArchiveEnabled: true,
			ArchiveBaseURL: "https://web.archive.org/web/2/",
			PDFTimeout:     30 * time.Second,
			PDFToText:      "pdftotext",
			PDFInfo:        "pdfinfo",
			PDFToPPM:       "pdftoppm",
			ThumbnailDir:   filepath.Join(base, "thumbnails"),
			BlueskyHost:    "https://public.api.bsky.app",
		},
		Extract: ExtractConfig{
			MaxReferences:  25,
			MinTitleLength: 8,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60,
			MaxTokens:   2000,
			ChunkTokens: 3000,
		},
		Evidence: EvidenceConfig{
			Enabled:            true,
			MaxQueriesPerClaim: 3,
			ResultsPerQuery:    8,
			CandidatesPerClaim: 8,
			MaxSourcesPerClaim: 3,
			MaxClaims:          12,
			SearchTimeout:      15 * time.Second,
			SearchBaseURL:      "https://html.duckduckgo.com/html/",
			SearchWorkers:      4,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"doi.org", "nih.gov", "ncbi.nlm.nih.gov", "who.int", "cdc.gov",
				"europa.eu", "legislation.gov.uk", "arxiv.org", "nature.com",
				"science.org", "thelancet.com", "nejm.org", "pubmed.ncbi.nlm.nih.gov",
			},
			SecondaryDomains: []string{
				"wikipedia.org", "britannica.com", "reuters.com", "apnews.com",
				"bbc.co.uk", "bbc.com", "nytimes.com", "theguardian.com",
				"washingtonpost.com", "economist.com",
			},
			PathPatterns: []PathPattern{
				{Pattern: `(?i)^/(doi|abs|pmc/articles)/`, Tier: "primary"},
				{Pattern: `(?i)/(publications?|reports?|statistics)/`, Tier: "secondary"},
			},
		},
		Crawl: CrawlConfig{
			MaxDepth:          2,
			FanOut:            1,
			RecurseReferences: false,
			AnalyzeReferences: true,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(base, "provenance.db"),
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(base, "cache"),
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
	}
}
