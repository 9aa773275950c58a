package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlueskyResolver turns bsky.app post URLs into synthetic HTML through the
// public AppView, so social posts flow through the same extractor as pages
type BlueskyResolver struct {
	resolveHandle func(ctx context.Context, handle string) (string, error)
	getThread     func(ctx context.Context, uri string) (*bsky.FeedGetPostThread_Output, error)
}

// NewBlueskyResolver creates a resolver against an unauthenticated AppView host
func NewBlueskyResolver(host string) *BlueskyResolver {
	if host == "" {
		host = "https://public.api.bsky.app"
	}
	client := &xrpc.Client{Host: host}

	return &BlueskyResolver{
		resolveHandle: func(ctx context.Context, handle string) (string, error) {
			out, err := atproto.IdentityResolveHandle(ctx, client, handle)
			if err != nil {
				return "", err
			}
			return out.Did, nil
		},
		getThread: func(ctx context.Context, uri string) (*bsky.FeedGetPostThread_Output, error) {
			return bsky.FeedGetPostThread(ctx, client, 0, 0, uri)
		},
	}
}

// Matches reports whether rawURL is a bsky.app post permalink
func (b *BlueskyResolver) Matches(rawURL string) bool {
	_, _, ok := parseBlueskyPostURL(rawURL)
	return ok
}

// parseBlueskyPostURL extracts (actor, rkey) from https://bsky.app/profile/<actor>/post/<rkey>
func parseBlueskyPostURL(rawURL string) (actor, rkey string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "bsky.app" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "profile" || parts[2] != "post" || parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// Resolve fetches the post and renders it as HTML
func (b *BlueskyResolver) Resolve(ctx context.Context, rawURL string) ([]byte, error) {
	actor, rkey, ok := parseBlueskyPostURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("not a bluesky post url: %s", rawURL)
	}

	did := actor
	if !strings.HasPrefix(actor, "did:") {
		resolved, err := b.resolveHandle(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("resolve handle %s: %w", actor, err)
		}
		did = resolved
	}

	uri := fmt.Sprintf("at://%s/app.bsky.feed.post/%s", did, rkey)
	out, err := b.getThread(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("get post thread: %w", err)
	}
	if out == nil || out.Thread == nil || out.Thread.FeedDefs_ThreadViewPost == nil || out.Thread.FeedDefs_ThreadViewPost.Post == nil {
		return nil, errors.New("post not found or blocked")
	}

	return renderPost(out.Thread.FeedDefs_ThreadViewPost.Post, rawURL)
}

type socialPost struct {
	Author string
	Handle string
	Text   string
	Links  []socialLink
	Image  string
}

type socialLink struct {
	URL   string
	Title string
}

func postFromView(view *bsky.FeedDefs_PostView) (*socialPost, error) {
	if view.Record == nil {
		return nil, errors.New("post has no record")
	}
	record, ok := view.Record.Val.(*bsky.FeedPost)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T", view.Record.Val)
	}

	post := &socialPost{Text: record.Text}
	if view.Author != nil {
		post.Handle = view.Author.Handle
		post.Author = view.Author.Handle
		if view.Author.DisplayName != nil && *view.Author.DisplayName != "" {
			post.Author = *view.Author.DisplayName
		}
	}

	seen := make(map[string]bool)
	addLink := func(u, title string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		post.Links = append(post.Links, socialLink{URL: u, Title: title})
	}

	for _, facet := range record.Facets {
		for _, feature := range facet.Features {
			if feature != nil && feature.RichtextFacet_Link != nil {
				addLink(feature.RichtextFacet_Link.Uri, "")
			}
		}
	}
	if record.Embed != nil && record.Embed.EmbedExternal != nil && record.Embed.EmbedExternal.External != nil {
		ext := record.Embed.EmbedExternal.External
		addLink(ext.Uri, ext.Title)
	}

	if view.Embed != nil && view.Embed.EmbedImages_View != nil {
		for _, img := range view.Embed.EmbedImages_View.Images {
			if img != nil && img.Fullsize != "" {
				post.Image = img.Fullsize
				break
			}
		}
	}

	return post, nil
}

func renderPost(view *bsky.FeedDefs_PostView, permalink string) ([]byte, error) {
	post, err := postFromView(view)
	if err != nil {
		return nil, err
	}
	return post.HTML(permalink)
}

// HTML renders the post as a minimal article page. The title follows the
// "<poster> on Bluesky: <text>" convention used by the platforms themselves.
func (p *socialPost) HTML(permalink string) ([]byte, error) {
	snippet := p.Text
	if utf8.RuneCountInString(snippet) > 80 {
		snippet = string([]rune(snippet)[:80]) + "…"
	}
	title := fmt.Sprintf("%s on Bluesky: %q", p.Author, snippet)

	head := element(atom.Head,
		element(atom.Title, textNode(title)),
		meta("name", "author", p.Author),
		meta("property", "og:site_name", "Bluesky"),
		meta("property", "og:url", permalink),
	)
	if p.Image != "" {
		head.AppendChild(meta("property", "og:image", p.Image))
	}

	article := element(atom.Article)
	for _, para := range strings.Split(p.Text, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			article.AppendChild(element(atom.P, textNode(para)))
		}
	}
	for _, l := range p.Links {
		label := l.Title
		if label == "" {
			label = "Source: " + l.URL
		}
		a := element(atom.A, textNode(label))
		a.Attr = append(a.Attr, html.Attribute{Key: "href", Val: l.URL})
		article.AppendChild(element(atom.P, a))
	}

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(element(atom.Html, head, element(atom.Body, article)))

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render post html: %w", err)
	}
	return buf.Bytes(), nil
}

func element(a atom.Atom, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func meta(attr, key, content string) *html.Node {
	n := element(atom.Meta)
	n.Attr = []html.Attribute{{Key: attr, Val: key}, {Key: "content", Val: content}}
	return n
}
