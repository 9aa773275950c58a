package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/provenance/internal/model"
)

// SQLiteGateway is the default Gateway, a single local SQLite file
type SQLiteGateway struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// OpenSQLite creates or opens the database at path and migrates it
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteGateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; concurrent crawl branches queue here
	conn.SetMaxOpenConns(1)

	g := &SQLiteGateway{
		conn:   conn,
		path:   path,
		logger: logger.With(zap.String("component", "store"), zap.String("driver", "sqlite")),
	}
	if err := g.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return g, nil
}

// Close closes the database connection
func (g *SQLiteGateway) Close() error {
	return g.conn.Close()
}

// Path returns the database file path
func (g *SQLiteGateway) Path() string {
	return g.path
}

func (g *SQLiteGateway) schemaVersion() (int, error) {
	var version int
	if err := g.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (g *SQLiteGateway) migrate() error {
	current, err := g.schemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		g.logger.Info("applying migration", zap.Int("version", m.version), zap.String("description", m.description))

		tx, err := g.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if err := m.up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}

		// user_version is set outside the transaction; the DDL is idempotent
		// so a crash in between only re-runs the migration
		if _, err := g.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.version, err)
		}
	}
	return nil
}

// UpsertContent inserts or refreshes a record by URL. The thumbnail is never
// overwritten with an empty value and a task is never demoted to a reference.
// Authors and references are replaced.
func (g *SQLiteGateway) UpsertContent(ctx context.Context, c Content) (int64, error) {
	if err := validateContent(c); err != nil {
		return 0, err
	}
	rec := c.Record

	subtopics, err := json.Marshal(nonNil(rec.Subtopics))
	if err != nil {
		return 0, fmt.Errorf("marshal subtopics: %w", err)
	}

	tx, err := g.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert content: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO content (url, kind, name, body, media, topic, subtopics, image, thumbnail, retracted, publisher_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
    kind = CASE WHEN content.kind = 'task' THEN content.kind ELSE excluded.kind END,
    name = excluded.name,
    body = excluded.body,
    media = excluded.media,
    topic = excluded.topic,
    subtopics = excluded.subtopics,
    image = excluded.image,
    thumbnail = CASE WHEN excluded.thumbnail != '' THEN excluded.thumbnail ELSE content.thumbnail END,
    retracted = excluded.retracted,
    publisher_id = excluded.publisher_id,
    updated_at = datetime('now')
RETURNING id`,
		rec.URL, string(rec.Kind), rec.Name, rec.Text, string(rec.Media), rec.Topic,
		string(subtopics), rec.Image, rec.Thumbnail, rec.Retracted, nullableID(c.PublisherID),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert content %s: %w", rec.URL, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM content_authors WHERE content_id = ?`, id); err != nil {
		return 0, fmt.Errorf("clear content authors: %w", err)
	}
	for i, authorID := range c.AuthorIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_authors (content_id, author_id, position) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			id, authorID, i); err != nil {
			return 0, fmt.Errorf("link author %d: %w", authorID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM content_references WHERE content_id = ?`, id); err != nil {
		return 0, fmt.Errorf("clear references: %w", err)
	}
	for _, ref := range rec.References {
		claims, err := json.Marshal(nonNil(ref.Claims))
		if err != nil {
			return 0, fmt.Errorf("marshal reference claims: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO content_references (content_id, url, title, origin, claims, score)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(content_id, url) DO UPDATE SET title = excluded.title, origin = excluded.origin, claims = excluded.claims, score = excluded.score`,
			id, ref.URL, ref.Title, string(ref.Origin), string(claims), ref.Score); err != nil {
			return 0, fmt.Errorf("insert reference %s: %w", ref.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert content: %w", err)
	}
	return id, nil
}

// SetThumbnail back-fills the thumbnail of a stored record
func (g *SQLiteGateway) SetThumbnail(ctx context.Context, contentID int64, thumbnail string) error {
	res, err := g.conn.ExecContext(ctx,
		`UPDATE content SET thumbnail = ?, updated_at = datetime('now') WHERE id = ?`, thumbnail, contentID)
	if err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set thumbnail: content %d not found", contentID)
	}
	return nil
}

// UpsertAuthor returns the id of the author with the same normalized name,
// creating it if needed. Missing title or suffix parts are filled in later.
func (g *SQLiteGateway) UpsertAuthor(ctx context.Context, parts model.NameParts) (int64, error) {
	key := AuthorKey(parts)
	if key == "" {
		return 0, fmt.Errorf("upsert author: %w", ErrEmptyKey)
	}

	var id int64
	err := g.conn.QueryRowContext(ctx, `
INSERT INTO authors (name_key, title, first_name, middle_name, last_name, suffix)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name_key) DO UPDATE SET
    title = CASE WHEN authors.title = '' THEN excluded.title ELSE authors.title END,
    suffix = CASE WHEN authors.suffix = '' THEN excluded.suffix ELSE authors.suffix END
RETURNING id`,
		key, parts.Title, parts.First, parts.Middle, parts.Last, parts.Suffix,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert author %q: %w", key, err)
	}
	return id, nil
}

// UpsertPublisher returns the id of the publisher with the same
// case-insensitive name
func (g *SQLiteGateway) UpsertPublisher(ctx context.Context, name string) (int64, error) {
	key := PublisherKey(name)
	if key == "" {
		return 0, fmt.Errorf("upsert publisher: %w", ErrEmptyKey)
	}

	var id int64
	err := g.conn.QueryRowContext(ctx, `
INSERT INTO publishers (name, name_key) VALUES (?, ?)
ON CONFLICT(name_key) DO UPDATE SET name_key = excluded.name_key
RETURNING id`,
		strings.TrimSpace(name), key,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert publisher %q: %w", key, err)
	}
	return id, nil
}

// LinkContentRelation records that childID was discovered from parentID
func (g *SQLiteGateway) LinkContentRelation(ctx context.Context, parentID, childID int64, system bool) error {
	_, err := g.conn.ExecContext(ctx, `
INSERT INTO content_relations (parent_id, child_id, system) VALUES (?, ?, ?)
ON CONFLICT(parent_id, child_id) DO UPDATE SET system = excluded.system`,
		parentID, childID, system)
	if err != nil {
		return fmt.Errorf("link content %d -> %d: %w", parentID, childID, err)
	}
	return nil
}

// UpsertClaim returns the id of the claim with the same normalized text
func (g *SQLiteGateway) UpsertClaim(ctx context.Context, text string) (int64, error) {
	key := model.ClaimKey(text)
	if key == "" {
		return 0, fmt.Errorf("upsert claim: %w", ErrEmptyKey)
	}

	var id int64
	err := g.conn.QueryRowContext(ctx, `
INSERT INTO claims (text) VALUES (?)
ON CONFLICT(text) DO UPDATE SET text = excluded.text
RETURNING id`, key).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert claim: %w", err)
	}
	return id, nil
}

// LinkContentClaim relates a claim to a content record
func (g *SQLiteGateway) LinkContentClaim(ctx context.Context, contentID, claimID int64, relationship string) error {
	_, err := g.conn.ExecContext(ctx, `
INSERT INTO content_claims (content_id, claim_id, relationship) VALUES (?, ?, ?)
ON CONFLICT DO NOTHING`, contentID, claimID, relationship)
	if err != nil {
		return fmt.Errorf("link content %d claim %d: %w", contentID, claimID, err)
	}
	return nil
}

// UpsertClaimLink stores a stance edge between two claims; a repeated link
// keeps the latest stance and the stronger support
func (g *SQLiteGateway) UpsertClaimLink(ctx context.Context, link model.ClaimLink) error {
	stance := model.ParseStance(string(link.Stance))
	_, err := g.conn.ExecContext(ctx, `
INSERT INTO claim_links (source_claim_id, target_claim_id, stance, support) VALUES (?, ?, ?, ?)
ON CONFLICT(source_claim_id, target_claim_id) DO UPDATE SET
    stance = excluded.stance,
    support = MAX(claim_links.support, excluded.support)`,
		link.SourceClaimID, link.TargetClaimID, string(stance), link.Support)
	if err != nil {
		return fmt.Errorf("upsert claim link %d -> %d: %w", link.SourceClaimID, link.TargetClaimID, err)
	}
	return nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
