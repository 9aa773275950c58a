package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/provenance/internal/heuristics"
)

// resolveImage prefers the structured-data image, then the social preview
// image, then the largest declared photo in the page
func resolveImage(doc *goquery.Document, sd structuredData, base *url.URL) string {
	for _, candidate := range []string{sd.Image, metaContent(doc, "og:image", "og:image:url", "twitter:image", "twitter:image:src")} {
		if candidate == "" {
			continue
		}
		if resolved := resolveURL(base, candidate); resolved != "" && heuristics.LooksLikePhoto(resolved, 0, 0) {
			return resolved
		}
	}
	return largestImage(doc, base)
}

func largestImage(doc *goquery.Document, base *url.URL) string {
	var best string
	bestArea := -1

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if img.Closest("nav, footer, header, aside").Length() > 0 {
			return
		}

		src := firstAttr(img, "src", "data-src", "data-lazy-src", "data-original")
		width := atoiAttr(img, "width")
		height := atoiAttr(img, "height")

		if set := firstAttr(img, "srcset", "data-srcset"); set != "" {
			if u, w := bestSrcset(set); u != "" {
				src = u
				if w > width && width > 0 && height > 0 {
					height = height * w / width
				}
				if w > width {
					width = w
				}
			}
		}

		src = resolveURL(base, src)
		if src == "" || !heuristics.LooksLikePhoto(src, width, height) {
			return
		}

		area := width * height
		if width > 0 && height == 0 {
			area = width * width / 2
		}
		if area > bestArea {
			best, bestArea = src, area
		}
	})
	return best
}

// bestSrcset returns the highest-resolution candidate of a srcset attribute
// and its width (0 for density descriptors)
func bestSrcset(srcset string) (string, int) {
	var bestURL string
	bestScore := -1.0
	bestWidth := 0

	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		score, width := 1.0, 0
		if len(fields) > 1 {
			desc := strings.ToLower(fields[1])
			switch {
			case strings.HasSuffix(desc, "w"):
				if n, err := strconv.Atoi(strings.TrimSuffix(desc, "w")); err == nil {
					score, width = float64(n), n
				}
			case strings.HasSuffix(desc, "x"):
				if f, err := strconv.ParseFloat(strings.TrimSuffix(desc, "x"), 64); err == nil {
					score = f
				}
			}
		}
		if score > bestScore {
			bestURL, bestScore, bestWidth = fields[0], score, width
		}
	}
	return bestURL, bestWidth
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(s.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

func atoiAttr(s *goquery.Selection, name string) int {
	v := strings.TrimSuffix(strings.TrimSpace(s.AttrOr(name, "")), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
