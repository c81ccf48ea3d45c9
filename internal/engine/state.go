package engine

// BatchState is the orchestrator lifecycle state.
type BatchState int32

const (
	StateValidated BatchState = iota
	StateAccrualApplied
	StatePhaseARunning
	StatePhaseBRunning
	StateFinalVerify
	StateCommitted
	StateAborted
)

func (s BatchState) String() string {
	switch s {
	case StateValidated:
		return "Validated"
	case StateAccrualApplied:
		return "AccrualApplied"
	case StatePhaseARunning:
		return "PhaseARunning"
	case StatePhaseBRunning:
		return "PhaseBRunning"
	case StateFinalVerify:
		return "FinalVerify"
	case StateCommitted:
		return "Committed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the state name, not the numeric value.
func (s BatchState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// validTransitions is the lifecycle machine: a strict forward chain plus a
// single absorbing Aborted state reachable from any non-terminal state.
var validTransitions = map[BatchState][]BatchState{
	StateValidated:      {StateAccrualApplied, StateAborted},
	StateAccrualApplied: {StatePhaseARunning, StateAborted},
	StatePhaseARunning:  {StatePhaseBRunning, StateAborted},
	StatePhaseBRunning:  {StateFinalVerify, StateAborted},
	StateFinalVerify:    {StateCommitted, StateAborted},
	StateCommitted:      {},
	StateAborted:        {},
}

// CanTransitionTo reports whether the lifecycle permits the move.
func (s BatchState) CanTransitionTo(target BatchState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}
