package fetch

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skipText = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Svg: true, atom.Iframe: true, atom.Head: true, atom.Object: true,
}

var blockBreak = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Tr: true, atom.Blockquote: true,
	atom.Section: true, atom.Article: true, atom.Pre: true,
}

// VisibleText returns the human-visible text of an HTML document, with
// paragraph breaks at block elements
func VisibleText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return NodeText(doc)
}

// NodeText returns the visible text beneath n
func NodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipText[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockBreak[n.DataAtom] {
			b.WriteString("\n\n")
		}
	}
	walk(n)
	return normalizeParagraphs(b.String())
}

func normalizeParagraphs(s string) string {
	var paras []string
	for _, p := range strings.Split(s, "\n\n") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}

// TextLength is the rune count of collapsed visible text
func TextLength(text string) int {
	return utf8.RuneCountInString(strings.Join(strings.Fields(text), " "))
}

var consentMarkers = []string{
	"cookie", "consent", "gdpr", "onetrust", "qc-cmp", "didomi", "truste",
	"cmp-container", "cmpbox", "sp_message", "usercentrics", "cookiebot", "privacy-banner",
}

var consentContainers = map[atom.Atom]bool{
	atom.Div: true, atom.Section: true, atom.Aside: true, atom.Dialog: true,
	atom.Form: true, atom.Footer: true, atom.Iframe: true,
}

// StripConsent removes cookie-consent overlays. Unparseable input is returned unchanged.
func StripConsent(body []byte) []byte {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return body
	}

	removed := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode && consentContainers[c.DataAtom] && isConsentNode(c) {
				n.RemoveChild(c)
				removed = true
			} else {
				walk(c)
			}
			c = next
		}
	}
	walk(doc)

	if !removed {
		return body
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return body
	}
	return buf.Bytes()
}

func isConsentNode(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "id" && a.Key != "class" && a.Key != "aria-label" && a.Key != "data-nosnippet" {
			continue
		}
		v := strings.ToLower(a.Val)
		for _, m := range consentMarkers {
			if strings.Contains(v, m) {
				return true
			}
		}
	}
	return false
}

// LooksLikeFeed reports whether a body is an RSS, Atom or JSON feed rather
// than a page
func LooksLikeFeed(contentType string, body []byte) bool {
	switch contentType {
	case "application/rss+xml", "application/atom+xml", "application/feed+json":
		return true
	}
	return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
}

// HTMLTitle returns the document <title>, or ""
func HTMLTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
