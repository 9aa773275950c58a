package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/cache"
)

// ErrNoProvider is returned when semantic extraction is disabled
var ErrNoProvider = errors.New("no LLM provider configured")

// Service is the semantic extraction service. Each operation returns the
// provider's raw JSON text; callers decode it with ParseJSON.
type Service struct {
	provider Provider
	model    string
	cache    cache.Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewService creates a new Service. modelName only partitions the response
// cache; the provider decides the model actually called.
func NewService(provider Provider, modelName string, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{
		provider: provider,
		model:    modelName,
		cache:    c,
		ttl:      ttl,
		logger:   logger.With(zap.String("component", "semantic")),
	}
}

// Enabled reports whether a provider is configured
func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

// ExtractTopicsAndClaims returns {generalTopic, specificTopics, claims, testimonials}
func (s *Service) ExtractTopicsAndClaims(ctx context.Context, text string, hints []string) (string, error) {
	return s.complete(ctx, "topics", topicsSystemPrompt, BuildTopicsPrompt(text, hints))
}

// SuggestQueriesForClaims returns search queries and domain preferences per claim
func (s *Service) SuggestQueriesForClaims(ctx context.Context, text string, claims []string) (string, error) {
	return s.complete(ctx, "queries", queriesSystemPrompt, BuildQueriesPrompt(text, claims))
}

// SearchAndRankSources picks up to three sources per claim from the candidates
func (s *Service) SearchAndRankSources(ctx context.Context, items []RankItem) (string, error) {
	user, err := BuildRankPrompt(items)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, "rank", rankSystemPrompt, user)
}

func (s *Service) complete(ctx context.Context, op, system, user string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoProvider
	}

	key := cache.Key(cache.NamespaceSemantic, s.provider.Name(), s.model, system, user)
	if data, ok := s.cache.Get(key); ok {
		s.logger.Debug("semantic cache hit", zap.String("op", op))
		return string(data), nil
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System: system,
		User:   user,
		JSON:   true,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("semantic call complete",
		zap.String("op", op),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", time.Since(start)))

	// Only cache answers that decode, so a bad response is retried next run
	var decoded json.RawMessage
	if ParseJSON(resp.Text, &decoded) == nil {
		if err := s.cache.Set(key, []byte(resp.Text), s.ttl); err != nil {
			s.logger.Warn("semantic cache write failed", zap.Error(err))
		}
	}

	return resp.Text, nil
}
