package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
)

// In-page footnote markers, as rendered by MediaWiki and common markdown engines
const footnoteMarkers = `sup.reference a[href^="#"], a.footnote-ref[href^="#"], a[role="doc-noteref"][href^="#"]`

// Section headings whose lists are treated as sources
var sourceSections = []string{"external links", "further reading", "sources", "bibliography"}

// footnoteReferences follows footnote markers to the notes they point at and
// returns the off-site links inside them, then the links listed under source
// sections. Notes are visited once each in marker order.
func footnoteReferences(doc *goquery.Document, base *url.URL) []model.ReferenceLink {
	var out []model.ReferenceLink
	seen := make(map[string]bool)

	collect := func(scope *goquery.Selection, bonus float64) {
		scope.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := resolveURL(base, a.AttrOr("href", ""))
			if href == "" || sameSite(base, href) {
				return
			}
			title := heuristics.CollapseSpace(a.Text())
			if !heuristics.SaneTitle(title) {
				title = heuristics.CollapseSpace(scope.Find("cite").First().Text())
			}
			out = append(out, model.ReferenceLink{
				URL:    href,
				Title:  title,
				Origin: model.OriginDOM,
				Score:  bonus + heuristics.CitationURLBonus(href),
			})
		})
	}

	doc.Find(footnoteMarkers).Each(func(_ int, marker *goquery.Selection) {
		id := strings.TrimPrefix(marker.AttrOr("href", ""), "#")
		if id == "" || seen[id] || strings.ContainsAny(id, `"\`) {
			return
		}
		seen[id] = true
		if note := doc.Find(`[id="` + id + `"]`).First(); note.Length() > 0 {
			collect(note, 2)
		}
	})

	doc.Find("h2, h3").Each(func(_ int, heading *goquery.Selection) {
		name := strings.ToLower(heuristics.CollapseSpace(heading.Text()))
		name = strings.TrimSuffix(name, "[edit]")
		name = strings.TrimSpace(name)
		for _, section := range sourceSections {
			if name != section {
				continue
			}
			// MediaWiki wraps headings in a div; lists follow the wrapper
			start := heading
			if parent := heading.Parent(); parent.HasClass("mw-heading") {
				start = parent
			}
			collect(start.NextUntil("h2, h3, div.mw-heading").Filter("ul, ol, div"), 1)
			return
		}
	})

	return out
}

// sameSite reports whether href points at the host of base
func sameSite(base *url.URL, href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return true
	}
	return strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www."))
}
