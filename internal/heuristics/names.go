package heuristics

import (
	"regexp"
	"strings"

	"github.com/ppiankov/provenance/internal/model"
)

// Surname particles that stay attached to the last name. Multi-word
// particles are listed before their prefixes so the longest match wins.
var surnameParticles = [][]string{
	{"de", "la"}, {"de", "las"}, {"de", "los"}, {"de", "le"},
	{"van", "der"}, {"van", "den"}, {"van", "de"}, {"von", "der"}, {"von", "dem"},
	{"da"}, {"das"}, {"de"}, {"del"}, {"della"}, {"der"}, {"di"}, {"do"}, {"dos"}, {"du"},
	{"la"}, {"le"}, {"van"}, {"von"}, {"ter"}, {"ten"},
	{"mac"}, {"mc"}, {"bin"}, {"ibn"}, {"al"}, {"el"}, {"st."}, {"st"}, {"saint"},
}

var nameTitles = map[string]bool{
	"dr": true, "prof": true, "professor": true, "mr": true, "mrs": true, "ms": true,
	"miss": true, "mx": true, "sir": true, "dame": true, "rev": true, "fr": true,
	"hon": true, "sen": true, "rep": true, "gov": true, "gen": true, "capt": true,
}

var nameSuffixes = map[string]string{
	"jr": "Jr.", "sr": "Sr.", "ii": "II", "iii": "III", "iv": "IV", "v": "V",
	"phd": "PhD", "md": "MD", "do": "DO", "dds": "DDS", "dvm": "DVM", "rn": "RN",
	"esq": "Esq.", "mba": "MBA", "ma": "MA", "ms": "MS", "msc": "MSc", "bsc": "BSc",
	"mph": "MPH", "jd": "JD", "cpa": "CPA", "pe": "PE", "frcp": "FRCP", "facs": "FACS",
}

var bylinePrefix = regexp.MustCompile(`(?i)^\s*(by|written by|posted by|author:)\s+`)

func tokenKey(tok string) string {
	return strings.ToLower(strings.Trim(tok, ".,"))
}

// ParseName decomposes a person name into title/first/middle/last/suffix.
// Suffixes are recognized after a comma or as trailing tokens; surname
// particles ("van", "de la", "mac") are kept attached to the last name.
func ParseName(raw string) model.NameParts {
	var parts model.NameParts

	s := bylinePrefix.ReplaceAllString(CollapseSpace(raw), "")
	if s == "" {
		return parts
	}

	// Comma-separated tail: "Name, PhD" or "Name, Jr., MD"
	var suffixes []string
	var given string
	segments := strings.Split(s, ",")
	s = strings.TrimSpace(segments[0])
	for i, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if canon, ok := nameSuffixes[tokenKey(seg)]; ok {
			suffixes = append(suffixes, canon)
			continue
		}
		// Citation order "Last, First"
		if i == 0 && len(strings.Fields(s)) == 1 {
			given = seg
		}
	}
	if given != "" {
		s = given + " " + s
	}

	tokens := strings.Fields(s)

	// Leading titles
	var titles []string
	for len(tokens) > 1 && nameTitles[tokenKey(tokens[0])] {
		titles = append(titles, tokens[0])
		tokens = tokens[1:]
	}

	// Trailing suffix tokens without a comma ("John Smith Jr.")
	for len(tokens) > 2 {
		canon, ok := nameSuffixes[tokenKey(tokens[len(tokens)-1])]
		if !ok {
			break
		}
		suffixes = append([]string{canon}, suffixes...)
		tokens = tokens[:len(tokens)-1]
	}

	parts.Title = strings.Join(titles, " ")
	parts.Suffix = strings.Join(suffixes, ", ")

	switch len(tokens) {
	case 0:
		return parts
	case 1:
		parts.Last = tokens[0]
		return parts
	}

	parts.First = tokens[0]
	lastStart := len(tokens) - 1
	for i := 1; i < len(tokens)-1; i++ {
		if particleAt(tokens, i) > 0 {
			lastStart = i
			break
		}
	}

	parts.Middle = strings.Join(tokens[1:lastStart], " ")
	parts.Last = strings.Join(tokens[lastStart:], " ")
	return parts
}

// particleAt returns the length of the surname particle starting at tokens[i]
// that is followed by at least one more token, or 0.
func particleAt(tokens []string, i int) int {
	for _, p := range surnameParticles {
		if i+len(p) >= len(tokens) {
			continue
		}
		match := true
		for j, w := range p {
			if strings.ToLower(tokens[i+j]) != w {
				match = false
				break
			}
		}
		if match {
			return len(p)
		}
	}
	return 0
}

// NormalizeName is the case-insensitive identity of an author name, used for
// deduplication: titles, suffixes and punctuation do not distinguish authors.
func NormalizeName(raw string) string {
	parts := ParseName(raw)
	full := parts.Full()
	if full == "" {
		full = raw
	}
	full = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '\'', '"':
			return -1
		}
		return r
	}, full)
	return strings.ToLower(CollapseSpace(full))
}

// PlausibleAuthor rejects strings that are obviously not person names
// (URLs, emails, very long bylines, organization boilerplate).
func PlausibleAuthor(raw string) bool {
	s := CollapseSpace(bylinePrefix.ReplaceAllString(raw, ""))
	if s == "" || len(s) > 80 {
		return false
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "http") || strings.Contains(lower, "@") || strings.Contains(lower, "www.") {
		return false
	}
	for _, bad := range []string{"staff", "editorial", "admin", "newsroom", "team", "contributors", "unknown"} {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	return len(strings.Fields(s)) <= 8
}
