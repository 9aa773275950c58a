// Package heuristics holds the small, pure string judgments used across
// extraction: title sanity, name parsing, citation cues, URL identity and
// media classification. Nothing here performs I/O.
package heuristics

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
)

const (
	minTitleChars = 5
	maxTitleChars = 300
)

var boilerplateTitle = regexp.MustCompile(`(?i)\b(privacy policy|cookie (policy|settings|preferences)|terms (of|and) (use|service|conditions)|all rights reserved|copyright|sign in|log ?in|subscribe( now)?|page not found|404|403|access denied|just a moment|attention required|are you a robot|enable javascript|legal notice|disclaimer)\b`)

// SaneTitle reports whether a candidate title is plausible: within length
// bounds, not boilerplate or a legal notice, and not a short ALL-CAPS fragment.
func SaneTitle(title string) bool {
	t := CollapseSpace(title)
	n := len([]rune(t))
	if n < minTitleChars || n > maxTitleChars {
		return false
	}
	if boilerplateTitle.MatchString(t) {
		return false
	}
	if isShoutedFragment(t) {
		return false
	}
	return true
}

// isShoutedFragment is true for short strings whose letters are all upper case
// ("BREAKING NEWS", "MENU")
func isShoutedFragment(s string) bool {
	if len(strings.Fields(s)) > 4 {
		return false
	}
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters > 0
}

// CleanTitle strips common site suffixes ("Title | Site", "Title - Site") when
// the remaining head is still a sane title.
func CleanTitle(title string) string {
	t := CollapseSpace(title)
	for _, sep := range []string{" | ", " — ", " – ", " - ", " :: "} {
		if i := strings.LastIndex(t, sep); i > 0 {
			head := strings.TrimSpace(t[:i])
			if SaneTitle(head) && len(strings.Fields(head)) >= 2 {
				return head
			}
		}
	}
	return t
}

// TitleFromURL derives a human-readable title from the last path segment
func TitleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	p := strings.Trim(parsed.Path, "/")
	if p == "" {
		return strings.TrimPrefix(parsed.Hostname(), "www.")
	}

	last := path.Base(p)
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}
	last = strings.NewReplacer("_", " ", "-", " ", "+", " ").Replace(last)
	last = CollapseSpace(last)
	if last == "" {
		return strings.TrimPrefix(parsed.Hostname(), "www.")
	}

	runes := []rune(last)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// CollapseSpace trims and collapses internal whitespace
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
