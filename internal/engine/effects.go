package engine

import (
	"github.com/google/uuid"

	"BatchLedger/internal/action"
	"BatchLedger/internal/ledger"
)

// Effect is the record of what one committed action did: tokens moved,
// shares and debt deltas, positions created or destroyed.
type Effect struct {
	Index int           `json:"index"` // position in the caller's original order
	Kind  action.Kind   `json:"kind"`
	Actor uuid.UUID     `json:"actor"`
	Pool  ledger.PoolID `json:"pool"`

	SharesMinted int64 `json:"shares_minted,omitempty"`
	SharesBurned int64 `json:"shares_burned,omitempty"`
	DebtDelta    int64 `json:"debt_delta,omitempty"` // value, positive = new debt

	Amount0In  int64 `json:"amount0_in,omitempty"`
	Amount1In  int64 `json:"amount1_in,omitempty"`
	Amount0Out int64 `json:"amount0_out,omitempty"`
	Amount1Out int64 `json:"amount1_out,omitempty"`

	Recipient uuid.UUID         `json:"recipient,omitempty"`
	Position  ledger.PositionID `json:"position,omitempty"`
	BadDebt   int64             `json:"bad_debt,omitempty"`
	FeeValue  int64             `json:"fee_value,omitempty"`
}

// Receipt is what a batch submission returns: the full effect list on
// commit, or the single first-failure on abort. Simulated receipts carry
// the would-be effects without any state change.
type Receipt struct {
	BatchID   uuid.UUID  `json:"batch_id"`
	Caller    uuid.UUID  `json:"caller"`
	State     BatchState `json:"state"`
	Committed bool       `json:"committed"`
	Simulated bool       `json:"simulated,omitempty"`

	Effects []Effect `json:"effects,omitempty"`

	FailureIndex int    `json:"failure_index,omitempty"` // original order; -1 when batch-level
	FailureKind  string `json:"failure_kind,omitempty"`
	FailureClass string `json:"failure_class,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func committedReceipt(batchID, caller uuid.UUID, simulated bool, effects []Effect) *Receipt {
	return &Receipt{
		BatchID:   batchID,
		Caller:    caller,
		State:     StateCommitted,
		Committed: !simulated,
		Simulated: simulated,
		Effects:   effects,
	}
}

func abortedReceipt(batchID, caller uuid.UUID, simulated bool, berr *BatchError) *Receipt {
	r := &Receipt{
		BatchID:      batchID,
		Caller:       caller,
		State:        StateAborted,
		Simulated:    simulated,
		FailureIndex: berr.ActionIndex,
		FailureClass: berr.Class.String(),
		Reason:       berr.Error(),
	}
	if berr.ActionIndex >= 0 {
		r.FailureKind = berr.ActionKind.String()
	}
	return r
}
