// Package analyze extracts the topic, subtopics, claims and testimonials of a
// document through the semantic service, one token-bounded chunk at a time.
package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/llm"
	"github.com/ppiankov/provenance/internal/model"
)

// MaxSubtopics is how many of the most frequent specific topics are kept
const MaxSubtopics = 5

// Semantic is the part of the semantic service the analyzer calls
type Semantic interface {
	ExtractTopicsAndClaims(ctx context.Context, text string, hints []string) (string, error)
}

// Analysis is the merged result over all chunks
type Analysis struct {
	GeneralTopic   string        `json:"generalTopic"`
	SpecificTopics []string      `json:"specificTopics"`
	Claims         []model.Claim `json:"claims"`
	Testimonials   []string      `json:"testimonials"`
	Chunks         int           `json:"chunks"`
	Dropped        int           `json:"dropped"` // Chunks whose response could not be used
}

// Analyzer is the claim and topic extractor
type Analyzer struct {
	semantic Semantic
	budget   int
	logger   *zap.Logger
}

// NewAnalyzer creates a new Analyzer; budget is the input token limit per call
func NewAnalyzer(semantic Semantic, budget int, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		semantic: semantic,
		budget:   budget,
		logger:   logger.With(zap.String("component", "analyzer")),
	}
}

// Analyze chunks text, calls the semantic service once per chunk in order and
// merges the answers. A chunk whose call fails or whose JSON cannot be
// repaired is dropped; an error is returned only when every chunk is dropped
// or ctx ends.
func (a *Analyzer) Analyze(ctx context.Context, text string, hints []string) (*Analysis, error) {
	chunks := Chunk(text, a.budget)
	result := &Analysis{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	topics := newTally()
	subtopics := newTally()
	var lastErr error

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Hints apply to the whole document; send them with the first chunk only
		var chunkHints []string
		if i == 0 {
			chunkHints = hints
		}

		raw, err := a.semantic.ExtractTopicsAndClaims(ctx, chunk, chunkHints)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a.logger.Warn("chunk extraction failed", zap.Int("chunk", i), zap.Error(err))
			result.Dropped++
			lastErr = err
			continue
		}

		var parsed llm.TopicsAndClaims
		if err := llm.ParseJSON(raw, &parsed); err != nil {
			a.logger.Warn("dropping chunk with malformed response", zap.Int("chunk", i), zap.Error(err))
			result.Dropped++
			lastErr = err
			continue
		}

		topics.add(parsed.GeneralTopic)
		for _, st := range parsed.SpecificTopics {
			subtopics.add(st)
		}
		for _, c := range parsed.Claims {
			result.Claims = append(result.Claims, model.Claim{Text: strings.TrimSpace(c)})
		}
		for _, t := range parsed.Testimonials {
			if t = strings.TrimSpace(t); t != "" {
				result.Testimonials = append(result.Testimonials, t)
			}
		}
	}

	if result.Dropped == len(chunks) {
		return result, fmt.Errorf("analyze: all %d chunks dropped: %w", len(chunks), lastErr)
	}

	result.GeneralTopic = topics.top(1).first()
	result.SpecificTopics = subtopics.top(MaxSubtopics)
	result.Claims = model.DedupeClaims(result.Claims)

	a.logger.Debug("analysis complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("dropped", result.Dropped),
		zap.Int("claims", len(result.Claims)),
		zap.String("topic", result.GeneralTopic))

	return result, nil
}

// tally counts case-insensitive votes, remembering the first spelling and
// first-seen order for tie breaks
type tally struct {
	counts map[string]int
	order  []string
	label  map[string]string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int), label: make(map[string]string)}
}

func (t *tally) add(raw string) {
	label := strings.Join(strings.Fields(raw), " ")
	if label == "" {
		return
	}
	key := strings.ToLower(label)
	if _, ok := t.counts[key]; !ok {
		t.order = append(t.order, key)
		t.label[key] = label
	}
	t.counts[key]++
}

type ranked []string

func (r ranked) first() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

// top returns up to n labels by descending vote count, first-seen order on ties
func (t *tally) top(n int) ranked {
	keys := append([]string(nil), t.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return t.counts[keys[i]] > t.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make(ranked, len(keys))
	for i, k := range keys {
		out[i] = t.label[k]
	}
	return out
}
