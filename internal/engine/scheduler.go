package engine

import (
	"BatchLedger/internal/action"
)

// Scheduled is one action with its place in the caller's original order.
// Effects and failures always report the original index.
type Scheduled struct {
	Index  int
	Action action.Action
	Phase  action.Phase
}

// Schedule stably partitions the action list: risk-reducing actions first
// in their original relative order, then everything else in original
// relative order. There is exactly one partition boundary; nothing else is
// reordered.
func Schedule(actions []action.Action) []Scheduled {
	out := make([]Scheduled, 0, len(actions))
	for i, a := range actions {
		if action.PhaseOf(a.Kind()) == action.PhaseRiskReducing {
			out = append(out, Scheduled{Index: i, Action: a, Phase: action.PhaseRiskReducing})
		}
	}
	for i, a := range actions {
		if action.PhaseOf(a.Kind()) != action.PhaseRiskReducing {
			out = append(out, Scheduled{Index: i, Action: a, Phase: action.PhaseRiskIncreasing})
		}
	}
	return out
}

// PhaseBoundary returns the index in the scheduled slice where phase B
// starts.
func PhaseBoundary(scheduled []Scheduled) int {
	for i, s := range scheduled {
		if s.Phase != action.PhaseRiskReducing {
			return i
		}
	}
	return len(scheduled)
}
