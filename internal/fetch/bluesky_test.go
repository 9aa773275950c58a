package fetch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
)

func TestParseBlueskyPostURL(t *testing.T) {
	tests := []struct {
		url   string
		actor string
		rkey  string
		ok    bool
	}{
		{"https://bsky.app/profile/nasa.gov/post/3kabc", "nasa.gov", "3kabc", true},
		{"https://www.bsky.app/profile/did:plc:xyz/post/3kdef/", "did:plc:xyz", "3kdef", true},
		{"https://bsky.app/profile/nasa.gov", "", "", false},
		{"https://example.com/profile/nasa.gov/post/3kabc", "", "", false},
	}
	for _, tt := range tests {
		actor, rkey, ok := parseBlueskyPostURL(tt.url)
		if actor != tt.actor || rkey != tt.rkey || ok != tt.ok {
			t.Errorf("parseBlueskyPostURL(%q) = (%q, %q, %v)", tt.url, actor, rkey, ok)
		}
	}
}

func testPostView() *bsky.FeedDefs_PostView {
	name := "NASA"
	return &bsky.FeedDefs_PostView{
		Author: &bsky.ActorDefs_ProfileViewBasic{Handle: "nasa.gov", DisplayName: &name},
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.FeedPost{
			Text: "Webb found water vapour around a rocky exoplanet.\nDetails in the paper.",
			Facets: []*bsky.RichtextFacet{{
				Features: []*bsky.RichtextFacet_Features_Elem{{
					RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: "https://arxiv.org/abs/2401.00001"},
				}},
			}},
			Embed: &bsky.FeedPost_Embed{EmbedExternal: &bsky.EmbedExternal{
				External: &bsky.EmbedExternal_External{Uri: "https://science.nasa.gov/webb", Title: "Webb news"},
			}},
		}},
		Embed: &bsky.FeedDefs_PostView_Embed{EmbedImages_View: &bsky.EmbedImages_View{
			Images: []*bsky.EmbedImages_ViewImage{{Fullsize: "https://cdn.bsky.app/img/full.jpg"}},
		}},
	}
}

func TestBlueskyResolver_Resolve(t *testing.T) {
	var requestedURI string
	b := &BlueskyResolver{
		resolveHandle: func(ctx context.Context, handle string) (string, error) {
			if handle != "nasa.gov" {
				t.Errorf("Unexpected handle %q", handle)
			}
			return "did:plc:nasa", nil
		},
		getThread: func(ctx context.Context, uri string) (*bsky.FeedGetPostThread_Output, error) {
			requestedURI = uri
			return &bsky.FeedGetPostThread_Output{Thread: &bsky.FeedGetPostThread_Output_Thread{
				FeedDefs_ThreadViewPost: &bsky.FeedDefs_ThreadViewPost{Post: testPostView()},
			}}, nil
		},
	}

	body, err := b.Resolve(context.Background(), "https://bsky.app/profile/nasa.gov/post/3kabc")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if requestedURI != "at://did:plc:nasa/app.bsky.feed.post/3kabc" {
		t.Errorf("Unexpected thread uri %q", requestedURI)
	}

	page := string(body)
	for _, want := range []string{
		`NASA on Bluesky`,
		`content="NASA"`,
		`href="https://arxiv.org/abs/2401.00001"`,
		`Source: https://arxiv.org/abs/2401.00001`,
		`>Webb news</a>`,
		`og:image`,
		`<p>Details in the paper.</p>`,
	} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected rendered post to contain %q\n%s", want, page)
		}
	}
	if got := HTMLTitle(body); !strings.HasPrefix(got, `NASA on Bluesky: "Webb found water`) {
		t.Errorf("Unexpected title %q", got)
	}
}

func TestBlueskyResolver_MissingPost(t *testing.T) {
	b := &BlueskyResolver{
		resolveHandle: func(ctx context.Context, handle string) (string, error) { return "", errors.New("unknown handle") },
		getThread: func(ctx context.Context, uri string) (*bsky.FeedGetPostThread_Output, error) {
			return &bsky.FeedGetPostThread_Output{}, nil
		},
	}

	if _, err := b.Resolve(context.Background(), "https://bsky.app/profile/ghost.test/post/1"); err == nil {
		t.Error("Expected handle resolution failure")
	}
	if _, err := b.Resolve(context.Background(), "https://bsky.app/profile/did:plc:ghost/post/1"); err == nil {
		t.Error("Expected missing thread to fail")
	}
}

func TestResolve_SocialPostIsExemptFromThreshold(t *testing.T) {
	social := &BlueskyResolver{
		resolveHandle: func(ctx context.Context, handle string) (string, error) { return "did:plc:nasa", nil },
		getThread: func(ctx context.Context, uri string) (*bsky.FeedGetPostThread_Output, error) {
			return &bsky.FeedGetPostThread_Output{Thread: &bsky.FeedGetPostThread_Output_Thread{
				FeedDefs_ThreadViewPost: &bsky.FeedDefs_ThreadViewPost{Post: testPostView()},
			}}, nil
		},
	}
	resolver := NewResolver(testResolverConfig(), testFetcher(), Options{Social: social})

	res, err := resolver.Resolve(context.Background(), "https://bsky.app/profile/nasa.gov/post/3kabc", RemoteFetch{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if res.Stage != StageSocial || res.Kind != KindHTML {
		t.Errorf("Expected social html, got %s/%s", res.Kind, res.Stage)
	}
}
