package event

import (
	"github.com/google/uuid"
)

// ActionExecuted is emitted once per scheduled step, success or not, so a
// consumer can locate the failing step even though state fully rolls back.
type ActionExecuted struct {
	BatchID    uuid.UUID `json:"batch_id"`
	Index      int       `json:"index"`
	Kind       string    `json:"kind"`
	Actor      uuid.UUID `json:"actor"`
	PoolID     uint32    `json:"pool_id"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	DurationUs int64     `json:"duration_us"`
}

func (e *ActionExecuted) Type() EventType { return EventTypeActionExecuted }
func (e *ActionExecuted) Pool() *uint32   { return &e.PoolID }

// BatchExecuted is the aggregate terminal event of a committed batch.
type BatchExecuted struct {
	BatchID    uuid.UUID `json:"batch_id"`
	Caller     uuid.UUID `json:"caller"`
	NumActions int       `json:"num_actions"`
	Simulated  bool      `json:"simulated,omitempty"`
}

func (e *BatchExecuted) Type() EventType { return EventTypeBatchExecuted }
func (e *BatchExecuted) Pool() *uint32   { return nil }

// BatchAborted is the aggregate terminal event of an aborted batch.
type BatchAborted struct {
	BatchID      uuid.UUID `json:"batch_id"`
	Caller       uuid.UUID `json:"caller"`
	NumActions   int       `json:"num_actions"`
	FailureIndex int       `json:"failure_index"` // -1 when no single action failed
	FailureKind  string    `json:"failure_kind,omitempty"`
	Reason       string    `json:"reason"`
	Simulated    bool      `json:"simulated,omitempty"`
}

func (e *BatchAborted) Type() EventType { return EventTypeBatchAborted }
func (e *BatchAborted) Pool() *uint32   { return nil }

// AccrualApplied records a once-per-batch debt index advance on a pool.
type AccrualApplied struct {
	BatchID        uuid.UUID `json:"batch_id"`
	PoolID         uint32    `json:"pool_id"`
	OldIndex       int64     `json:"old_index"`
	NewIndex       int64     `json:"new_index"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
}

func (e *AccrualApplied) Type() EventType { return EventTypeAccrualApplied }
func (e *AccrualApplied) Pool() *uint32   { return &e.PoolID }

// BadDebtRecorded marks a full-liquidation shortfall booked as a pool
// liability.
type BadDebtRecorded struct {
	BatchID uuid.UUID `json:"batch_id"`
	PoolID  uint32    `json:"pool_id"`
	Victim  uuid.UUID `json:"victim"`
	Amount  int64     `json:"amount"`
}

func (e *BadDebtRecorded) Type() EventType { return EventTypeBadDebtRecorded }
func (e *BadDebtRecorded) Pool() *uint32   { return &e.PoolID }

// VaultLiquidated records a partial or full liquidation of a vault.
type VaultLiquidated struct {
	BatchID     uuid.UUID `json:"batch_id"`
	PoolID      uint32    `json:"pool_id"`
	Victim      uuid.UUID `json:"victim"`
	Liquidator  uuid.UUID `json:"liquidator"`
	RepaidValue int64     `json:"repaid_value"`
	SeizedValue int64     `json:"seized_value"`
	Full        bool      `json:"full"`
}

func (e *VaultLiquidated) Type() EventType { return EventTypeVaultLiquidated }
func (e *VaultLiquidated) Pool() *uint32   { return &e.PoolID }

// PositionOpened records a new range allocation or limit order.
type PositionOpened struct {
	BatchID    uuid.UUID `json:"batch_id"`
	PoolID     uint32    `json:"pool_id"`
	Owner      uuid.UUID `json:"owner"`
	PositionID uint64    `json:"position_id"`
	Kind       string    `json:"kind"`
	TickLower  int32     `json:"tick_lower"`
	TickUpper  int32     `json:"tick_upper"`
	Shares     int64     `json:"shares"`
}

func (e *PositionOpened) Type() EventType { return EventTypePositionOpened }
func (e *PositionOpened) Pool() *uint32   { return &e.PoolID }

// PositionClosed records a destroyed position or settled order.
type PositionClosed struct {
	BatchID    uuid.UUID `json:"batch_id"`
	PoolID     uint32    `json:"pool_id"`
	Owner      uuid.UUID `json:"owner"`
	PositionID uint64    `json:"position_id"`
	Settled    bool      `json:"settled,omitempty"`
	PaidOut    bool      `json:"paid_out,omitempty"`
}

func (e *PositionClosed) Type() EventType { return EventTypePositionClosed }
func (e *PositionClosed) Pool() *uint32   { return &e.PoolID }
