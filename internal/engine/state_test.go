package engine

import "testing"

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		from, to BatchState
		ok       bool
	}{
		{StateValidated, StateAccrualApplied, true},
		{StateAccrualApplied, StatePhaseARunning, true},
		{StatePhaseARunning, StatePhaseBRunning, true},
		{StatePhaseBRunning, StateFinalVerify, true},
		{StateFinalVerify, StateCommitted, true},
		{StateValidated, StateAborted, true},
		{StateAccrualApplied, StateAborted, true},
		{StatePhaseARunning, StateAborted, true},
		{StatePhaseBRunning, StateAborted, true},
		{StateFinalVerify, StateAborted, true},

		{StateValidated, StatePhaseARunning, false},
		{StateValidated, StateCommitted, false},
		{StatePhaseARunning, StateFinalVerify, false},
		{StatePhaseBRunning, StatePhaseARunning, false},
		{StateCommitted, StateAborted, false},
		{StateCommitted, StateValidated, false},
		{StateAborted, StateValidated, false},
		{StateAborted, StateCommitted, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestStateJSONRendersName(t *testing.T) {
	b, err := StateCommitted.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"Committed"` {
		t.Fatalf("marshal = %s", b)
	}
}
