package model

import "strings"

// Claim is an atomic, independently verifiable statement extracted from a ContentRecord
type Claim struct {
	Text       string   `json:"text"`                 // The claim text itself
	Veracity   *float64 `json:"veracity,omitempty"`   // Populated by the downstream scoring engine
	Confidence *float64 `json:"confidence,omitempty"` // Populated by the downstream scoring engine
}

// Key returns the normalized text used for exact-match deduplication
func (c Claim) Key() string {
	return ClaimKey(c.Text)
}

// ClaimKey normalizes claim text for deduplication: trimmed, whitespace collapsed
func ClaimKey(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Stance describes how a target relates to a source claim
type Stance string

const (
	StanceSupports Stance = "supports"
	StanceRefutes  Stance = "refutes"
	StanceRelated  Stance = "related"
)

// ParseStance maps free-form service output onto a Stance.
// Anything unrecognized becomes StanceRelated; extraction is best-effort.
func ParseStance(raw string) Stance {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "supports", "support", "supporting", "supported", "confirms", "agrees":
		return StanceSupports
	case "refutes", "refute", "refuting", "refuted", "contradicts", "disputes", "disagrees":
		return StanceRefutes
	default:
		return StanceRelated
	}
}

// ClaimLink is a directed, stance-carrying edge between two persisted claims
type ClaimLink struct {
	SourceClaimID int64   `json:"source_claim_id"`
	TargetClaimID int64   `json:"target_claim_id"`
	Stance        Stance  `json:"stance"`
	Support       float64 `json:"support"` // Confidence of the stance, 0..1
}

// DedupeClaims keeps the first occurrence of every claim text
func DedupeClaims(claims []Claim) []Claim {
	seen := make(map[string]bool, len(claims))
	var unique []Claim

	for _, claim := range claims {
		key := claim.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, claim)
	}

	return unique
}
