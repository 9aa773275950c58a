package crawl

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
	"github.com/ppiankov/provenance/internal/store"
)

// persist writes record with its publisher, authors and claims. Author,
// publisher and content writes are required; a claim that cannot be stored
// is logged and left out.
func (c *Controller) persist(ctx context.Context, record *model.ContentRecord, logger *zap.Logger) (*result, error) {
	var publisherID int64
	if name := record.Publisher.Name; name != "" && name != model.UnknownPublisher {
		id, err := c.gateway.UpsertPublisher(ctx, name)
		if err != nil {
			return nil, err
		}
		publisherID = id
	}

	authorIDs := make([]int64, 0, len(record.Authors))
	for _, author := range record.Authors {
		parts := author.Parts
		if parts.Full() == "" {
			parts = heuristics.ParseName(author.Name)
		}
		id, err := c.gateway.UpsertAuthor(ctx, parts)
		if errors.Is(err, store.ErrEmptyKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		authorIDs = append(authorIDs, id)
	}

	contentID, err := c.gateway.UpsertContent(ctx, store.Content{
		Record:      record,
		PublisherID: publisherID,
		AuthorIDs:   authorIDs,
	})
	if err != nil {
		return nil, err
	}

	out := &result{id: contentID, claims: make(map[string]int64, len(record.Claims))}
	for _, claim := range record.Claims {
		key := model.ClaimKey(claim.Text)
		if _, ok := out.claims[key]; ok || key == "" {
			continue
		}
		claimID, err := c.gateway.UpsertClaim(ctx, claim.Text)
		if err != nil {
			logger.Warn("Claim not stored", zap.Int64("content_id", contentID), zap.Error(err))
			continue
		}
		if err := c.gateway.LinkContentClaim(ctx, contentID, claimID, store.RelationSource); err != nil {
			logger.Warn("Claim not linked", zap.Int64("content_id", contentID), zap.Int64("claim_id", claimID), zap.Error(err))
			continue
		}
		out.claims[key] = claimID
	}

	logger.Info("Content stored",
		zap.Int64("content_id", contentID),
		zap.String("url", record.URL),
		zap.String("kind", string(record.Kind)),
		zap.Int("claims", len(out.claims)),
		zap.Int("references", len(record.References)))
	return out, nil
}
