package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
)

// Containers that hold the primary content of a page, most specific first
var contentSelectors = []string{
	`[itemprop="articleBody"]`, "article", "main", `[role="main"]`,
	".mw-parser-output", ".entry-content", ".post-content", ".article-body", ".article-content",
	".story-body", ".content-body", ".post-body", ".article__body", "#article-body", "#content",
}

// Ancestors whose links are navigation or chrome rather than citations
const excludedAncestors = "nav, footer, header, aside, form, menu, [role=navigation], [role=banner], [role=contentinfo]"

var excludedClassHints = []string{
	"share", "social", "advert", "ad", "ads", "promo", "sponsor", "related", "newsletter",
	"subscribe", "comment", "menu", "breadcrumb", "nav", "footer", "sidebar", "tags", "byline",
}

// resolveReferences collects footnoted sources, citation-like links from the
// content container and structured-data citations, capped at maxReferences in
// first-seen order
func (e *Extractor) resolveReferences(doc *goquery.Document, sd structuredData, base *url.URL) []model.ReferenceLink {
	set := model.NewReferenceSet(heuristics.NormalizeURL)
	self := heuristics.NormalizeURL(base.String())

	add := func(link model.ReferenceLink) {
		if set.Len() >= e.maxReferences {
			return
		}
		if heuristics.NormalizeURL(link.URL) == self {
			return
		}
		set.Add(link)
	}

	for _, link := range footnoteReferences(doc, base) {
		add(link)
	}

	container := contentContainer(doc)
	container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if isChrome(a, container) {
			return
		}
		href := resolveURL(base, a.AttrOr("href", ""))
		if href == "" {
			return
		}

		text := heuristics.CollapseSpace(a.Text())
		sentence := heuristics.SentenceAround(a.Closest("p, li, td, dd, blockquote, figcaption, cite").Text(), text)

		score := heuristics.CitationScore(text) + heuristics.CitationScore(sentence) + heuristics.CitationURLBonus(href)
		if !heuristics.HasCitationCue(text) && !heuristics.HasCitationCue(sentence) && heuristics.CitationURLBonus(href) < 3 {
			return
		}

		title := text
		if !heuristics.SaneTitle(title) {
			title = a.AttrOr("title", "")
		}
		add(model.ReferenceLink{URL: href, Title: title, Origin: model.OriginDOM, Score: score})
	})

	for _, c := range sd.Citations {
		if href := resolveURL(base, c.URL); href != "" {
			add(model.ReferenceLink{URL: href, Title: c.Title, Origin: model.OriginDOM, Score: heuristics.CitationURLBonus(href) + 1})
		}
	}

	return set.Links()
}

// contentContainer returns the first content-looking container, or the body
func contentContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("body")
}

// isChrome reports whether a link sits inside navigation, sharing or ad markup
// below container. Wrappers above the container are page layout, not chrome.
func isChrome(a, container *goquery.Selection) bool {
	for node := a; node.Length() > 0; node = node.Parent() {
		if node.IsSelection(container) || goquery.NodeName(node) == "body" {
			break
		}
		if node.Is(excludedAncestors) {
			return true
		}
		attrs := strings.ToLower(node.AttrOr("class", "") + " " + node.AttrOr("id", ""))
		if attrs == " " {
			continue
		}
		for _, token := range strings.FieldsFunc(attrs, func(r rune) bool { return r == ' ' || r == '_' }) {
			for _, hint := range excludedClassHints {
				if token == hint || strings.HasPrefix(token, hint+"-") || strings.HasSuffix(token, "-"+hint) {
					return true
				}
			}
		}
	}
	return false
}

// resolveURL resolves href against base and keeps only http(s) links
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
