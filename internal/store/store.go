// Package store is the persistence gateway: idempotent upserts of content,
// authors, publishers and claims, and the links between them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
)

// Relationship types for LinkContentClaim. Evidence links use the stance
// values (supports, refutes, related).
const (
	RelationSource = "source" // The claim was extracted from the content
)

// ErrEmptyKey is returned when a natural key (URL, name, claim text) is blank
var ErrEmptyKey = errors.New("empty natural key")

// Content is a record ready for persistence, with its author and publisher
// already resolved to ids
type Content struct {
	Record      *model.ContentRecord
	PublisherID int64   // 0 = none
	AuthorIDs   []int64 // In byline order
}

// Gateway persists the provenance graph. Every upsert is idempotent on its
// natural key and safe for concurrent callers: two callers upserting the
// same author, publisher, claim or URL receive the same id.
type Gateway interface {
	UpsertContent(ctx context.Context, c Content) (int64, error)
	SetThumbnail(ctx context.Context, contentID int64, thumbnail string) error
	UpsertAuthor(ctx context.Context, parts model.NameParts) (int64, error)
	UpsertPublisher(ctx context.Context, name string) (int64, error)
	LinkContentRelation(ctx context.Context, parentID, childID int64, system bool) error
	UpsertClaim(ctx context.Context, text string) (int64, error)
	LinkContentClaim(ctx context.Context, contentID, claimID int64, relationship string) error
	UpsertClaimLink(ctx context.Context, link model.ClaimLink) error
	Close() error
}

// Open opens the gateway selected by cfg.Driver
func Open(cfg model.StoreConfig, logger *zap.Logger) (Gateway, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return OpenSQLite(cfg.SQLitePath, logger)
	case "postgres", "postgresql":
		return OpenPostgres(cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown store driver: %s (supported: sqlite, postgres)", cfg.Driver)
	}
}

// AuthorKey is the identity of an author: the lowercased full name without
// punctuation. Titles and suffixes do not distinguish authors.
func AuthorKey(parts model.NameParts) string {
	return heuristics.NormalizeName(parts.Full())
}

// PublisherKey is the case-insensitive identity of a publisher name
func PublisherKey(name string) string {
	return strings.ToLower(heuristics.CollapseSpace(name))
}

func validateContent(c Content) error {
	if c.Record == nil {
		return fmt.Errorf("upsert content: nil record")
	}
	if strings.TrimSpace(c.Record.URL) == "" {
		return fmt.Errorf("upsert content: %w", ErrEmptyKey)
	}
	return nil
}
