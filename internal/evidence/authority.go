package evidence

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/provenance/internal/model"
)

// Tier is the authority of an evidence source; lower is stronger
type Tier int

const (
	TierPrimary   Tier = 1 // Studies, statutes, official statistics
	TierSecondary Tier = 2 // Reference works, established newsrooms
	TierTertiary  Tier = 3 // Everything else
)

// String returns the tier name
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	default:
		return "tertiary"
	}
}

// weight is the ranking contribution of the tier
func (t Tier) weight() float64 {
	switch t {
	case TierPrimary:
		return 3
	case TierSecondary:
		return 2
	default:
		return 1
	}
}

// AuthorityClassifier classifies evidence URLs into authority tiers
type AuthorityClassifier struct {
	domainMap    map[string]Tier
	primary      []string
	secondary    []string
	pathPatterns []compiledPattern
}

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    Tier
}

// NewAuthorityClassifier creates a new authority classifier
func NewAuthorityClassifier(cfg *model.AuthorityConfig) *AuthorityClassifier {
	if cfg == nil {
		cfg = &model.DefaultConfig().Authority
	}

	c := &AuthorityClassifier{
		domainMap: make(map[string]Tier, len(cfg.DomainMap)),
		primary:   lowerAll(cfg.PrimaryDomains),
		secondary: lowerAll(cfg.SecondaryDomains),
	}
	for domain, tier := range cfg.DomainMap {
		c.domainMap[strings.ToLower(domain)] = parseTier(tier)
	}
	for _, p := range cfg.PathPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		c.pathPatterns = append(c.pathPatterns, compiledPattern{pattern: re, tier: parseTier(p.Tier)})
	}
	return c
}

// Classify returns the tier of rawURL. Explicit domain mappings win, then the
// primary and secondary domain lists (subdomains included), then path
// patterns, then the .gov/.edu/.ac.uk/.int suffix rule.
func (a *AuthorityClassifier) Classify(rawURL string) Tier {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return TierTertiary
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	if tier, ok := a.domainMap[host]; ok {
		return tier
	}
	if matchesDomain(host, a.primary) {
		return TierPrimary
	}
	if matchesDomain(host, a.secondary) {
		return TierSecondary
	}
	for _, cp := range a.pathPatterns {
		if cp.pattern.MatchString(parsed.Path) {
			return cp.tier
		}
	}

	for _, suffix := range []string{".gov", ".edu", ".ac.uk", ".gov.uk", ".int", ".mil"} {
		if strings.HasSuffix(host, suffix) {
			return TierPrimary
		}
	}
	return TierTertiary
}

// matchesDomain is true when host equals a listed domain or is a subdomain of it
func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func parseTier(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "primary", "1":
		return TierPrimary
	case "secondary", "2":
		return TierSecondary
	default:
		return TierTertiary
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, strings.TrimPrefix(s, "www."))
		}
	}
	return out
}
