package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/provenance/internal/model"
)

func openTestSQLite(t *testing.T) *SQLiteGateway {
	t.Helper()
	g, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "provenance.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func testRecord(url string) *model.ContentRecord {
	return &model.ContentRecord{
		URL:       url,
		Kind:      model.KindTask,
		Name:      "Coffee and the heart",
		Text:      "Body text",
		Media:     model.MediaWeb,
		Topic:     "Health",
		Subtopics: []string{"diet"},
		Image:     "https://example.com/hero.jpg",
		References: []model.ReferenceLink{
			{URL: "https://journal.test/study", Title: "Study", Origin: model.OriginClaim, Claims: []string{"Coffee helps."}, Score: 4},
			{URL: "https://other.test/", Origin: model.OriginDOM},
		},
	}
}

func TestSQLite_MigratesToLatest(t *testing.T) {
	g := openTestSQLite(t)

	version, err := g.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)

	// Reopening an up-to-date database is a no-op
	path := g.Path()
	require.NoError(t, g.Close())
	g2, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	defer g2.Close()
	version, err = g2.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestSQLite_UpsertContentIsIdempotent(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	pubID, err := g.UpsertPublisher(ctx, "Example News")
	require.NoError(t, err)
	authorID, err := g.UpsertAuthor(ctx, model.NameParts{First: "Jane", Last: "Doe"})
	require.NoError(t, err)

	rec := testRecord("https://example.com/a")
	rec.Thumbnail = "thumb-1.png"
	id1, err := g.UpsertContent(ctx, Content{Record: rec, PublisherID: pubID, AuthorIDs: []int64{authorID, authorID}})
	require.NoError(t, err)

	rec2 := testRecord("https://example.com/a")
	rec2.Name = "Updated name"
	id2, err := g.UpsertContent(ctx, Content{Record: rec2})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var name, thumbnail, subtopics string
	var publisher sql.NullInt64
	require.NoError(t, g.conn.QueryRow(`SELECT name, thumbnail, subtopics, publisher_id FROM content WHERE id = ?`, id1).
		Scan(&name, &thumbnail, &subtopics, &publisher))
	assert.Equal(t, "Updated name", name)
	assert.Equal(t, "thumb-1.png", thumbnail, "empty thumbnail must not erase a back-filled one")
	assert.JSONEq(t, `["diet"]`, subtopics)
	assert.False(t, publisher.Valid)

	var refs int
	require.NoError(t, g.conn.QueryRow(`SELECT COUNT(*) FROM content_references WHERE content_id = ?`, id1).Scan(&refs))
	assert.Equal(t, 2, refs)

	var claimsJSON string
	require.NoError(t, g.conn.QueryRow(`SELECT claims FROM content_references WHERE url = ?`, "https://journal.test/study").Scan(&claimsJSON))
	var claims []string
	require.NoError(t, json.Unmarshal([]byte(claimsJSON), &claims))
	assert.Equal(t, []string{"Coffee helps."}, claims)
}

func TestSQLite_TaskIsNotDemoted(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	id, err := g.UpsertContent(ctx, Content{Record: testRecord("https://example.com/seed")})
	require.NoError(t, err)

	ref := testRecord("https://example.com/seed")
	ref.Kind = model.KindReference
	_, err = g.UpsertContent(ctx, Content{Record: ref})
	require.NoError(t, err)

	var kind string
	require.NoError(t, g.conn.QueryRow(`SELECT kind FROM content WHERE id = ?`, id).Scan(&kind))
	assert.Equal(t, string(model.KindTask), kind)

	promoted := testRecord("https://example.com/ref")
	promoted.Kind = model.KindReference
	refID, err := g.UpsertContent(ctx, Content{Record: promoted})
	require.NoError(t, err)
	promoted.Kind = model.KindTask
	_, err = g.UpsertContent(ctx, Content{Record: promoted})
	require.NoError(t, err)

	require.NoError(t, g.conn.QueryRow(`SELECT kind FROM content WHERE id = ?`, refID).Scan(&kind))
	assert.Equal(t, string(model.KindTask), kind)
}

func TestSQLite_NaturalKeysConverge(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	a1, err := g.UpsertAuthor(ctx, model.NameParts{Title: "Dr.", First: "Maria", Last: "de la Cruz"})
	require.NoError(t, err)
	a2, err := g.UpsertAuthor(ctx, model.NameParts{First: "MARIA", Last: "De La Cruz", Suffix: "PhD"})
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	var title, suffix string
	require.NoError(t, g.conn.QueryRow(`SELECT title, suffix FROM authors WHERE id = ?`, a1).Scan(&title, &suffix))
	assert.Equal(t, "Dr.", title)
	assert.Equal(t, "PhD", suffix, "missing suffix is filled in")

	p1, err := g.UpsertPublisher(ctx, "The Lancet")
	require.NoError(t, err)
	p2, err := g.UpsertPublisher(ctx, "  the  lancet ")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	c1, err := g.UpsertClaim(ctx, "Coffee  lowers risk.")
	require.NoError(t, err)
	c2, err := g.UpsertClaim(ctx, " Coffee lowers risk. ")
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestSQLite_ConcurrentClaimUpserts(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := g.UpsertClaim(ctx, "The same claim.")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var count int
	require.NoError(t, g.conn.QueryRow(`SELECT COUNT(*) FROM claims`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLite_Links(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	parent, err := g.UpsertContent(ctx, Content{Record: testRecord("https://example.com/parent")})
	require.NoError(t, err)
	child, err := g.UpsertContent(ctx, Content{Record: testRecord("https://example.com/child")})
	require.NoError(t, err)

	require.NoError(t, g.LinkContentRelation(ctx, parent, child, true))
	require.NoError(t, g.LinkContentRelation(ctx, parent, child, true))

	claim, err := g.UpsertClaim(ctx, "Claim A.")
	require.NoError(t, err)
	other, err := g.UpsertClaim(ctx, "Claim B.")
	require.NoError(t, err)

	require.NoError(t, g.LinkContentClaim(ctx, parent, claim, RelationSource))
	require.NoError(t, g.LinkContentClaim(ctx, parent, claim, RelationSource))
	require.NoError(t, g.LinkContentClaim(ctx, child, claim, string(model.StanceSupports)))

	require.NoError(t, g.UpsertClaimLink(ctx, model.ClaimLink{SourceClaimID: claim, TargetClaimID: other, Stance: "nonsense", Support: 0.7}))
	require.NoError(t, g.UpsertClaimLink(ctx, model.ClaimLink{SourceClaimID: claim, TargetClaimID: other, Stance: model.StanceRefutes, Support: 0.2}))

	var relations, contentClaims int
	require.NoError(t, g.conn.QueryRow(`SELECT COUNT(*) FROM content_relations`).Scan(&relations))
	require.NoError(t, g.conn.QueryRow(`SELECT COUNT(*) FROM content_claims`).Scan(&contentClaims))
	assert.Equal(t, 1, relations)
	assert.Equal(t, 2, contentClaims)

	var stance string
	var support float64
	require.NoError(t, g.conn.QueryRow(`SELECT stance, support FROM claim_links`).Scan(&stance, &support))
	assert.Equal(t, "refutes", stance)
	assert.InDelta(t, 0.7, support, 1e-9)
}

func TestSQLite_SetThumbnail(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	id, err := g.UpsertContent(ctx, Content{Record: testRecord("https://example.com/a")})
	require.NoError(t, err)
	require.NoError(t, g.SetThumbnail(ctx, id, "thumbs/a.png"))
	assert.Error(t, g.SetThumbnail(ctx, id+100, "thumbs/missing.png"))
}

func TestSQLite_EmptyKeys(t *testing.T) {
	g := openTestSQLite(t)
	ctx := context.Background()

	_, err := g.UpsertClaim(ctx, "   ")
	assert.True(t, errors.Is(err, ErrEmptyKey))
	_, err = g.UpsertPublisher(ctx, "")
	assert.True(t, errors.Is(err, ErrEmptyKey))
	_, err = g.UpsertAuthor(ctx, model.NameParts{})
	assert.True(t, errors.Is(err, ErrEmptyKey))
	_, err = g.UpsertContent(ctx, Content{Record: &model.ContentRecord{}})
	assert.True(t, errors.Is(err, ErrEmptyKey))
}

func TestOpen_SelectsDriver(t *testing.T) {
	g, err := Open(model.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")}, nil)
	require.NoError(t, err)
	_ = g.Close()

	_, err = Open(model.StoreConfig{Driver: "mysql"}, nil)
	assert.Error(t, err)

	_, err = Open(model.StoreConfig{Driver: "postgres"}, nil)
	assert.Error(t, err, "missing DSN")
}

func TestAuthorKey(t *testing.T) {
	assert.Equal(t, AuthorKey(model.NameParts{Title: "Dr.", First: "Jane", Last: "Doe"}), AuthorKey(model.NameParts{First: "jane", Last: "DOE", Suffix: "PhD"}))
	assert.Equal(t, "", AuthorKey(model.NameParts{}))
}
