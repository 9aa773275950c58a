package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ppiankov/provenance/internal/model"
)

type publisherRow struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	NameKey   string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (publisherRow) TableName() string { return "publishers" }

type authorRow struct {
	ID         int64  `gorm:"primaryKey"`
	NameKey    string `gorm:"uniqueIndex;not null"`
	Title      string
	FirstName  string
	MiddleName string
	LastName   string
	Suffix     string
	CreatedAt  time.Time
}

func (authorRow) TableName() string { return "authors" }

type contentRow struct {
	ID          int64  `gorm:"primaryKey"`
	URL         string `gorm:"column:url;uniqueIndex;not null"`
	Kind        string `gorm:"not null"`
	Name        string
	Body        string
	Media       string
	Topic       string
	Subtopics   string `gorm:"type:jsonb;default:'[]'"`
	Image       string
	Thumbnail   string
	Retracted   bool
	PublisherID *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (contentRow) TableName() string { return "content" }

type contentAuthorRow struct {
	ContentID int64 `gorm:"primaryKey;autoIncrement:false"`
	AuthorID  int64 `gorm:"primaryKey;autoIncrement:false"`
	Position  int
}

func (contentAuthorRow) TableName() string { return "content_authors" }

type contentReferenceRow struct {
	ContentID int64  `gorm:"primaryKey;autoIncrement:false"`
	URL       string `gorm:"column:url;primaryKey"`
	Title     string
	Origin    string
	Claims    string `gorm:"type:jsonb;default:'[]'"`
	Score     float64
}

func (contentReferenceRow) TableName() string { return "content_references" }

type contentRelationRow struct {
	ParentID int64 `gorm:"primaryKey;autoIncrement:false"`
	ChildID  int64 `gorm:"primaryKey;autoIncrement:false;index"`
	System   bool
}

func (contentRelationRow) TableName() string { return "content_relations" }

type claimRow struct {
	ID        int64  `gorm:"primaryKey"`
	Text      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (claimRow) TableName() string { return "claims" }

type contentClaimRow struct {
	ContentID    int64  `gorm:"primaryKey;autoIncrement:false"`
	ClaimID      int64  `gorm:"primaryKey;autoIncrement:false;index"`
	Relationship string `gorm:"primaryKey"`
}

func (contentClaimRow) TableName() string { return "content_claims" }

type claimLinkRow struct {
	SourceClaimID int64  `gorm:"primaryKey;autoIncrement:false"`
	TargetClaimID int64  `gorm:"primaryKey;autoIncrement:false;index"`
	Stance        string `gorm:"not null"`
	Support       float64
}

func (claimLinkRow) TableName() string { return "claim_links" }

// PostgresGateway stores the graph in PostgreSQL through gorm
type PostgresGateway struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenPostgres connects to dsn and migrates the schema
func OpenPostgres(dsn string, logger *zap.Logger) (*PostgresGateway, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&publisherRow{}, &authorRow{}, &contentRow{}, &contentAuthorRow{},
		&contentReferenceRow{}, &contentRelationRow{}, &claimRow{},
		&contentClaimRow{}, &claimLinkRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	return NewPostgresGateway(db, logger), nil
}

// NewPostgresGateway wraps an open gorm connection
func NewPostgresGateway(db *gorm.DB, logger *zap.Logger) *PostgresGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresGateway{
		db:     db,
		logger: logger.With(zap.String("component", "store"), zap.String("driver", "postgres")),
	}
}

// Close closes the underlying connection pool
func (g *PostgresGateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertContent inserts or refreshes a record by URL inside one transaction
func (g *PostgresGateway) UpsertContent(ctx context.Context, c Content) (int64, error) {
	if err := validateContent(c); err != nil {
		return 0, err
	}
	rec := c.Record

	subtopics, err := json.Marshal(nonNil(rec.Subtopics))
	if err != nil {
		return 0, fmt.Errorf("marshal subtopics: %w", err)
	}

	row := contentRow{
		URL:       rec.URL,
		Kind:      string(rec.Kind),
		Name:      rec.Name,
		Body:      rec.Text,
		Media:     string(rec.Media),
		Topic:     rec.Topic,
		Subtopics: string(subtopics),
		Image:     rec.Image,
		Thumbnail: rec.Thumbnail,
		Retracted: rec.Retracted,
	}
	if c.PublisherID != 0 {
		id := c.PublisherID
		row.PublisherID = &id
	}

	updates := []string{"name", "body", "media", "topic", "subtopics", "image", "retracted", "publisher_id", "updated_at"}
	if rec.Thumbnail != "" {
		updates = append(updates, "thumbnail")
	}
	// A record ingested as a task stays a task when later found as a reference
	set := append(clause.AssignmentColumns(updates), clause.Assignment{
		Column: clause.Column{Name: "kind"},
		Value:  gorm.Expr(`CASE WHEN "content"."kind" = ? THEN "content"."kind" ELSE excluded."kind" END`, string(model.KindTask)),
	})

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoUpdates: set,
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert content %s: %w", rec.URL, err)
		}

		if err := tx.Where("content_id = ?", row.ID).Delete(&contentAuthorRow{}).Error; err != nil {
			return fmt.Errorf("clear content authors: %w", err)
		}
		if len(c.AuthorIDs) > 0 {
			authors := make([]contentAuthorRow, len(c.AuthorIDs))
			for i, authorID := range c.AuthorIDs {
				authors[i] = contentAuthorRow{ContentID: row.ID, AuthorID: authorID, Position: i}
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&authors).Error; err != nil {
				return fmt.Errorf("link authors: %w", err)
			}
		}

		if err := tx.Where("content_id = ?", row.ID).Delete(&contentReferenceRow{}).Error; err != nil {
			return fmt.Errorf("clear references: %w", err)
		}
		if len(rec.References) > 0 {
			refs := make([]contentReferenceRow, 0, len(rec.References))
			seen := make(map[string]bool, len(rec.References))
			for _, ref := range rec.References {
				if seen[ref.URL] {
					continue
				}
				seen[ref.URL] = true
				claims, err := json.Marshal(nonNil(ref.Claims))
				if err != nil {
					return fmt.Errorf("marshal reference claims: %w", err)
				}
				refs = append(refs, contentReferenceRow{
					ContentID: row.ID,
					URL:       ref.URL,
					Title:     ref.Title,
					Origin:    string(ref.Origin),
					Claims:    string(claims),
					Score:     ref.Score,
				})
			}
			if err := tx.Create(&refs).Error; err != nil {
				return fmt.Errorf("insert references: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// SetThumbnail back-fills the thumbnail of a stored record
func (g *PostgresGateway) SetThumbnail(ctx context.Context, contentID int64, thumbnail string) error {
	res := g.db.WithContext(ctx).
		Model(&contentRow{}).
		Where("id = ?", contentID).
		Updates(map[string]interface{}{
			"thumbnail":  thumbnail,
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return fmt.Errorf("set thumbnail: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set thumbnail: content %d not found", contentID)
	}
	return nil
}

// UpsertAuthor returns the id of the author with the same normalized name
func (g *PostgresGateway) UpsertAuthor(ctx context.Context, parts model.NameParts) (int64, error) {
	key := AuthorKey(parts)
	if key == "" {
		return 0, fmt.Errorf("upsert author: %w", ErrEmptyKey)
	}

	row := authorRow{
		NameKey:    key,
		Title:      parts.Title,
		FirstName:  parts.First,
		MiddleName: parts.Middle,
		LastName:   parts.Last,
		Suffix:     parts.Suffix,
	}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name_key"}),
	}).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("upsert author %q: %w", key, err)
	}
	return row.ID, nil
}

// UpsertPublisher returns the id of the publisher with the same case-insensitive name
func (g *PostgresGateway) UpsertPublisher(ctx context.Context, name string) (int64, error) {
	key := PublisherKey(name)
	if key == "" {
		return 0, fmt.Errorf("upsert publisher: %w", ErrEmptyKey)
	}

	row := publisherRow{Name: strings.TrimSpace(name), NameKey: key}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name_key"}),
	}).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("upsert publisher %q: %w", key, err)
	}
	return row.ID, nil
}

// LinkContentRelation records that childID was discovered from parentID
func (g *PostgresGateway) LinkContentRelation(ctx context.Context, parentID, childID int64, system bool) error {
	row := contentRelationRow{ParentID: parentID, ChildID: childID, System: system}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "parent_id"}, {Name: "child_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"system"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("link content %d -> %d: %w", parentID, childID, err)
	}
	return nil
}

// UpsertClaim returns the id of the claim with the same normalized text
func (g *PostgresGateway) UpsertClaim(ctx context.Context, text string) (int64, error) {
	key := model.ClaimKey(text)
	if key == "" {
		return 0, fmt.Errorf("upsert claim: %w", ErrEmptyKey)
	}

	row := claimRow{Text: key}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text"}},
		DoUpdates: clause.AssignmentColumns([]string{"text"}),
	}).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("upsert claim: %w", err)
	}
	return row.ID, nil
}

// LinkContentClaim relates a claim to a content record
func (g *PostgresGateway) LinkContentClaim(ctx context.Context, contentID, claimID int64, relationship string) error {
	row := contentClaimRow{ContentID: contentID, ClaimID: claimID, Relationship: relationship}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("link content %d claim %d: %w", contentID, claimID, err)
	}
	return nil
}

// UpsertClaimLink stores a stance edge between two claims
func (g *PostgresGateway) UpsertClaimLink(ctx context.Context, link model.ClaimLink) error {
	row := claimLinkRow{
		SourceClaimID: link.SourceClaimID,
		TargetClaimID: link.TargetClaimID,
		Stance:        string(model.ParseStance(string(link.Stance))),
		Support:       link.Support,
	}
	if err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_claim_id"}, {Name: "target_claim_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stance":  gorm.Expr("excluded.stance"),
			"support": gorm.Expr("GREATEST(claim_links.support, excluded.support)"),
		}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("upsert claim link %d -> %d: %w", link.SourceClaimID, link.TargetClaimID, err)
	}
	return nil
}
