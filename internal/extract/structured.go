package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// structuredData is what the extractor uses from a page's JSON-LD
type structuredData struct {
	Headline  string
	Authors   []string
	Publisher string
	Image     string
	Citations []citation
}

type citation struct {
	URL   string
	Title string
}

var articleTypes = map[string]bool{
	"article": true, "newsarticle": true, "scholarlyarticle": true, "blogposting": true,
	"report": true, "webpage": true, "medicalscholarlyarticle": true, "analysisnewsarticle": true,
	"reportagenewsarticle": true, "techarticle": true, "socialmediaposting": true, "creativework": true,
	"videoobject": true, "podcastepisode": true,
}

var organizationTypes = map[string]bool{
	"organization": true, "newsmediaorganization": true, "corporation": true,
	"educationalorganization": true, "governmentorganization": true, "website": true,
}

// parseStructured collects JSON-LD nodes from every ld+json script, flattening
// arrays and @graph containers. Malformed blocks are skipped.
func parseStructured(doc *goquery.Document) structuredData {
	var sd structuredData
	var nodes []map[string]any
	var persons []string

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &raw); err != nil {
			return
		}
		nodes = append(nodes, flattenLD(raw)...)
	})

	for _, n := range nodes {
		types := ldTypes(n)
		switch {
		case hasAny(types, articleTypes):
			if sd.Headline == "" {
				sd.Headline = firstString(n["headline"], n["name"])
			}
			sd.Authors = append(sd.Authors, ldNames(n["author"])...)
			sd.Authors = append(sd.Authors, ldNames(n["creator"])...)
			if sd.Publisher == "" {
				if names := ldNames(n["publisher"]); len(names) > 0 {
					sd.Publisher = names[0]
				}
			}
			if sd.Publisher == "" {
				if names := ldNames(n["isPartOf"]); len(names) > 0 {
					sd.Publisher = names[0]
				}
			}
			if sd.Image == "" {
				sd.Image = ldImage(n["image"])
			}
			if sd.Image == "" {
				sd.Image = ldImage(n["thumbnailUrl"])
			}
			sd.Citations = append(sd.Citations, ldCitations(n["citation"])...)
			sd.Citations = append(sd.Citations, ldCitations(n["references"])...)
		case hasAny(types, organizationTypes):
			if sd.Publisher == "" && !types["website"] {
				sd.Publisher = firstString(n["name"])
			}
		case types["person"]:
			persons = append(persons, ldNames(n)...)
		}
	}
	// Standalone Person nodes count only when no article names its authors
	if len(sd.Authors) == 0 {
		sd.Authors = persons
	}
	return sd
}

func flattenLD(raw any) []map[string]any {
	switch v := raw.(type) {
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, flattenLD(item)...)
		}
		return out
	case map[string]any:
		out := []map[string]any{v}
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
		return out
	}
	return nil
}

func ldTypes(n map[string]any) map[string]bool {
	types := make(map[string]bool)
	switch t := n["@type"].(type) {
	case string:
		types[strings.ToLower(t)] = true
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				types[strings.ToLower(s)] = true
			}
		}
	}
	return types
}

func hasAny(types map[string]bool, set map[string]bool) bool {
	for t := range types {
		if set[t] {
			return true
		}
	}
	return false
}

func firstString(values ...any) string {
	for _, v := range values {
		switch s := v.(type) {
		case string:
			if t := strings.TrimSpace(s); t != "" {
				return t
			}
		case []any:
			if t := firstString(s...); t != "" {
				return t
			}
		}
	}
	return ""
}

// ldNames reads names out of a Person/Organization value, which may be a
// string, an object or an array of either
func ldNames(v any) []string {
	switch x := v.(type) {
	case string:
		if t := strings.TrimSpace(x); t != "" {
			return []string{t}
		}
	case map[string]any:
		if name := firstString(x["name"]); name != "" {
			return []string{name}
		}
		given, family := firstString(x["givenName"]), firstString(x["familyName"])
		if full := strings.TrimSpace(given + " " + family); full != "" {
			return []string{full}
		}
	case []any:
		var out []string
		for _, item := range x {
			out = append(out, ldNames(item)...)
		}
		return out
	}
	return nil
}

func ldImage(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		return firstString(x["url"], x["contentUrl"], x["@id"])
	case []any:
		for _, item := range x {
			if s := ldImage(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func ldCitations(v any) []citation {
	switch x := v.(type) {
	case string:
		if strings.HasPrefix(x, "http://") || strings.HasPrefix(x, "https://") {
			return []citation{{URL: strings.TrimSpace(x)}}
		}
	case map[string]any:
		u := firstString(x["url"], x["@id"], x["sameAs"])
		if u == "" {
			if doi := firstString(x["doi"]); doi != "" {
				u = "https://doi.org/" + strings.TrimPrefix(doi, "https://doi.org/")
			}
		}
		if u != "" {
			return []citation{{URL: u, Title: firstString(x["name"], x["headline"])}}
		}
	case []any:
		var out []citation
		for _, item := range x {
			out = append(out, ldCitations(item)...)
		}
		return out
	}
	return nil
}

var scriptAuthorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"author"\s*:\s*\{[^{}]*?"name"\s*:\s*"([^"\\]{2,80})"`),
	regexp.MustCompile(`"authorName"\s*:\s*"([^"\\]{2,80})"`),
	regexp.MustCompile(`"byline"\s*:\s*"([^"\\]{2,80})"`),
	regexp.MustCompile(`"author"\s*:\s*"([^"\\]{2,80})"`),
}

// scriptAuthors scans inline application state (non JSON-LD scripts) for
// author names, the fallback for sites that render bylines client-side
func scriptAuthors(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "application/ld+json" {
			return
		}
		if _, hasSrc := s.Attr("src"); hasSrc {
			return
		}
		body := s.Text()
		for _, re := range scriptAuthorPatterns {
			for _, m := range re.FindAllStringSubmatch(body, 5) {
				out = append(out, m[1])
			}
		}
	})
	return out
}
