package crawl

// State is a step of the per-node crawl state machine
type State int

const (
	StateStart State = iota
	StateFetchingSeed
	StateExtractingSeed
	StateExtractingClaims
	StateMappingEvidence
	StatePersisting
	StateRecursingChildren
	StateDone
	StateSkipped
	StateFailed
)

var stateNames = [...]string{
	StateStart:             "start",
	StateFetchingSeed:      "fetching",
	StateExtractingSeed:    "extracting",
	StateExtractingClaims:  "extracting_claims",
	StateMappingEvidence:   "mapping_evidence",
	StatePersisting:        "persisting",
	StateRecursingChildren: "recursing",
	StateDone:              "done",
	StateSkipped:           "skipped",
	StateFailed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}
