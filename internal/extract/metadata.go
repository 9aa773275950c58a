package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/provenance/internal/heuristics"
	"github.com/ppiankov/provenance/internal/model"
)

// metaContent returns the first non-empty content of a meta tag matched by
// name, property or itemprop
func metaContent(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		for _, attr := range []string{"name", "property", "itemprop"} {
			var found string
			doc.Find("meta[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				v, _ := s.Attr(attr)
				if !strings.EqualFold(v, key) {
					return true
				}
				found = heuristics.CollapseSpace(s.AttrOr("content", ""))
				return found == ""
			})
			if found != "" {
				return found
			}
		}
	}
	return ""
}

// metaContents returns every content value for the given meta keys, in document order
func metaContents(doc *goquery.Document, keys ...string) []string {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[strings.ToLower(k)] = true
	}
	var out []string
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("name", s.AttrOr("property", s.AttrOr("itemprop", "")))
		if !want[strings.ToLower(key)] {
			return
		}
		if v := heuristics.CollapseSpace(s.AttrOr("content", "")); v != "" {
			out = append(out, v)
		}
	})
	return out
}

func documentTitle(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	return heuristics.CollapseSpace(doc.Find("title").First().Text())
}

// resolveTitle walks the title order: explicit name, document metadata,
// largest heading, PDF metadata, URL slug. Every candidate passes SaneTitle.
func (e *Extractor) resolveTitle(nameHint string, doc *goquery.Document, headline, pdfTitle, rawURL string) string {
	if hint := heuristics.CollapseSpace(nameHint); len([]rune(hint)) >= e.minTitle && heuristics.SaneTitle(hint) {
		return hint
	}

	if doc != nil {
		candidates := []string{
			metaContent(doc, "og:title", "twitter:title", "citation_title", "dc.title"),
			headline,
			heuristics.CleanTitle(documentTitle(doc)),
		}
		for _, c := range candidates {
			if c = heuristics.CollapseSpace(c); heuristics.SaneTitle(c) {
				return c
			}
		}
		if h := largestHeading(doc); h != "" {
			return h
		}
	}

	if heuristics.SaneTitle(pdfTitle) {
		return heuristics.CollapseSpace(pdfTitle)
	}
	return heuristics.TitleFromURL(rawURL)
}

// largestHeading returns the first sane heading of the highest level present
func largestHeading(doc *goquery.Document) string {
	for _, level := range []string{"h1", "h2", "h3"} {
		var found string
		doc.Find(level).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := heuristics.CollapseSpace(s.Text())
			if heuristics.SaneTitle(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// resolveAuthors merges every author source in priority order
func resolveAuthors(doc *goquery.Document, sd structuredData, byline string) []model.Author {
	var authors []model.Author
	authors = mergeAuthors(authors, sd.Authors, "jsonld")

	var metaNames []string
	for _, v := range metaContents(doc, "author", "article:author", "byl", "dc.creator", "parsely-author", "sailthru.author") {
		if heuristics.IsHTTPURL(v) {
			continue
		}
		metaNames = append(metaNames, splitAuthorList(v)...)
	}
	doc.Find(`[rel="author"], [itemprop="author"] [itemprop="name"]`).Each(func(_ int, s *goquery.Selection) {
		metaNames = append(metaNames, heuristics.CollapseSpace(s.Text()))
	})
	if byline != "" {
		metaNames = append(metaNames, splitAuthorList(byline)...)
	}
	authors = mergeAuthors(authors, metaNames, "meta")

	authors = mergeAuthors(authors, metaContents(doc, "citation_author", "dc.contributor"), "citation")

	if len(authors) == 0 {
		authors = mergeAuthors(authors, scriptAuthors(doc), "script")
	}
	return authors
}

// mergeAuthors appends names not already present, deduplicated by normalized name
func mergeAuthors(existing []model.Author, names []string, source string) []model.Author {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[heuristics.NormalizeName(a.Name)] = true
	}
	for _, raw := range names {
		name := heuristics.CollapseSpace(raw)
		if !heuristics.PlausibleAuthor(name) {
			continue
		}
		parts := heuristics.ParseName(name)
		key := heuristics.NormalizeName(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, model.Author{Name: name, Parts: parts, Source: source})
	}
	return existing
}

// splitAuthorList splits "A, B and C" style bylines. A comma followed by a
// recognised suffix ("Jane Doe, PhD") does not split.
func splitAuthorList(raw string) []string {
	raw = heuristics.CollapseSpace(raw)
	if raw == "" {
		return nil
	}
	raw = strings.NewReplacer(" & ", ";", " and ", ";", " | ", ";").Replace(raw)

	var out []string
	for _, group := range strings.Split(raw, ";") {
		segments := strings.Split(group, ",")
		cur := strings.TrimSpace(segments[0])
		for _, seg := range segments[1:] {
			seg = strings.TrimSpace(seg)
			if isNameSuffix(seg) {
				cur += ", " + seg
				continue
			}
			if cur != "" {
				out = append(out, cur)
			}
			cur = seg
		}
		if cur != "" {
			out = append(out, cur)
		}
	}
	return out
}

func isNameSuffix(seg string) bool {
	parts := heuristics.ParseName("X Y, " + seg)
	return parts.Suffix != "" && len(strings.Fields(seg)) == 1
}

// resolvePublisher walks the publisher order: structured data, site meta
// tags, citation journal. The title heuristic is applied by the caller.
func resolvePublisher(doc *goquery.Document, sd structuredData) model.Publisher {
	if sd.Publisher != "" {
		return model.Publisher{Name: sd.Publisher, Source: "jsonld"}
	}
	for _, v := range metaContents(doc, "og:site_name", "publisher", "article:publisher", "dc.publisher", "citation_publisher", "application-name") {
		if !heuristics.IsHTTPURL(v) {
			return model.Publisher{Name: v, Source: "meta"}
		}
	}
	if journal := metaContent(doc, "citation_journal_title", "citation_conference_title"); journal != "" {
		return model.Publisher{Name: journal, Source: "citation"}
	}
	return model.Publisher{Name: model.UnknownPublisher}
}
