package authz

// State is a stage of the per-request authorization pipeline. States only
// move forward and Denied and Proceed are terminal.
type State int

// Pipeline states.
const (
	StateStart State = iota
	StateClaimsExtracted
	StateNormalized
	StateDecided
	StateProceed
	StateDenied
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateClaimsExtracted:
		return "claims_extracted"
	case StateNormalized:
		return "normalized"
	case StateDecided:
		return "decided"
	case StateProceed:
		return "proceed"
	case StateDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends the pipeline.
func (s State) Terminal() bool {
	return s == StateProceed || s == StateDenied
}
