package action

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"BatchLedger/internal/ledger"
)

// MaxBatchActions bounds batch length so scheduling and verification cost
// stays bounded per submission.
const MaxBatchActions = 32

// Decode failure classes. All of them are validation failures that abort
// a batch before any handler runs.
var (
	ErrUnknownKind     = errors.New("unknown action kind")
	ErrReservedKind    = errors.New("reserved action kind")
	ErrBlacklistedKind = errors.New("blacklisted action kind")
	ErrMalformedParams = errors.New("malformed action params")
	ErrBatchTooLarge   = errors.New("batch exceeds max actions")
	ErrEmptyBatch      = errors.New("empty batch")
)

// RawAction is one tagged record of the wire batch payload.
type RawAction struct {
	Kind   uint8           `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// DecodeBatch validates batch shape and decodes every record. Any failure
// rejects the whole batch; no partial decode is returned.
func DecodeBatch(raws []RawAction) ([]Action, error) {
	if len(raws) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(raws) > MaxBatchActions {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(raws), MaxBatchActions)
	}
	out := make([]Action, len(raws))
	for i, raw := range raws {
		a, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}

// Decode converts one raw record into a typed action and validates its
// parameters.
func Decode(raw RawAction) (Action, error) {
	k := Kind(raw.Kind)
	if k.Blacklisted() {
		return nil, fmt.Errorf("%w: %s", ErrBlacklistedKind, k)
	}
	if k.Reserved() {
		return nil, fmt.Errorf("%w: %d", ErrReservedKind, raw.Kind)
	}

	var (
		a   Action
		err error
	)
	switch k {
	case KindDeposit:
		a, err = decodeDeposit(raw.Params)
	case KindWithdraw:
		a, err = decodeWithdraw(raw.Params)
	case KindBorrow:
		a, err = decodeBorrow(raw.Params)
	case KindRepay:
		a, err = decodeRepay(raw.Params)
	case KindRepaySingle:
		a, err = decodeRepaySingle(raw.Params)
	case KindOpenPosition:
		a, err = decodeOpenPosition(raw.Params)
	case KindClosePosition:
		a, err = decodeClosePosition(raw.Params)
	case KindPlaceLimitOrder:
		a, err = decodePlaceLimitOrder(raw.Params)
	case KindCancelLimitOrder:
		a, err = decodeCancelLimitOrder(raw.Params)
	case KindSwap:
		a, err = decodeSwap(raw.Params)
	case KindLiquidatePartial:
		a, err = decodeLiquidatePartial(raw.Params)
	case KindLiquidateFull:
		a, err = decodeLiquidateFull(raw.Params)
	case KindClaimFees:
		a, err = decodeClaimFees(raw.Params)
	case KindCloseVault:
		a, err = decodeCloseVault(raw.Params)
	case KindPoke:
		a, err = decodePoke(raw.Params)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, raw.Kind)
	}
	if err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedParams, k, err)
	}
	return a, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	PoolID    uint32 `json:"pool_id"`
	Amount0   int64  `json:"amount0"`
	Amount1   int64  `json:"amount1"`
	MinShares int64  `json:"min_shares"`
}

func decodeDeposit(data []byte) (*Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: deposit: %v", ErrMalformedParams, err)
	}
	return &Deposit{
		Pool:      ledger.PoolID(j.PoolID),
		Amount0:   j.Amount0,
		Amount1:   j.Amount1,
		MinShares: j.MinShares,
	}, nil
}

type withdrawJSON struct {
	PoolID     uint32 `json:"pool_id"`
	Shares     int64  `json:"shares"`
	MinAmount0 int64  `json:"min_amount0"`
	MinAmount1 int64  `json:"min_amount1"`
	Recipient  string `json:"recipient,omitempty"`
}

func decodeWithdraw(data []byte) (*Withdraw, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: withdraw: %v", ErrMalformedParams, err)
	}
	recipient, err := parseOptionalUUID(j.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: withdraw recipient: %v", ErrMalformedParams, err)
	}
	return &Withdraw{
		Pool:       ledger.PoolID(j.PoolID),
		Shares:     j.Shares,
		MinAmount0: j.MinAmount0,
		MinAmount1: j.MinAmount1,
		Recipient:  recipient,
	}, nil
}

type borrowJSON struct {
	PoolID    uint32 `json:"pool_id"`
	Value     int64  `json:"value"`
	Recipient string `json:"recipient,omitempty"`
}

func decodeBorrow(data []byte) (*Borrow, error) {
	var j borrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: borrow: %v", ErrMalformedParams, err)
	}
	recipient, err := parseOptionalUUID(j.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: borrow recipient: %v", ErrMalformedParams, err)
	}
	return &Borrow{
		Pool:      ledger.PoolID(j.PoolID),
		Value:     j.Value,
		Recipient: recipient,
	}, nil
}

type repayJSON struct {
	PoolID uint32 `json:"pool_id"`
	Value  int64  `json:"value"`
}

func decodeRepay(data []byte) (*Repay, error) {
	var j repayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: repay: %v", ErrMalformedParams, err)
	}
	return &Repay{Pool: ledger.PoolID(j.PoolID), Value: j.Value}, nil
}

type repaySingleJSON struct {
	PoolID     uint32 `json:"pool_id"`
	AssetIndex uint8  `json:"asset_index"`
	Amount     int64  `json:"amount"`
}

func decodeRepaySingle(data []byte) (*RepaySingle, error) {
	var j repaySingleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: repay_single: %v", ErrMalformedParams, err)
	}
	return &RepaySingle{
		Pool:       ledger.PoolID(j.PoolID),
		AssetIndex: j.AssetIndex,
		Amount:     j.Amount,
	}, nil
}

type openPositionJSON struct {
	PoolID    uint32 `json:"pool_id"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Shares    int64  `json:"shares"`
}

func decodeOpenPosition(data []byte) (*OpenPosition, error) {
	var j openPositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: open_position: %v", ErrMalformedParams, err)
	}
	return &OpenPosition{
		Pool:      ledger.PoolID(j.PoolID),
		TickLower: j.TickLower,
		TickUpper: j.TickUpper,
		Shares:    j.Shares,
	}, nil
}

type closePositionJSON struct {
	PoolID     uint32 `json:"pool_id"`
	PositionID uint64 `json:"position_id"`
	Withdraw   bool   `json:"withdraw,omitempty"`
}

func decodeClosePosition(data []byte) (*ClosePosition, error) {
	var j closePositionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: close_position: %v", ErrMalformedParams, err)
	}
	return &ClosePosition{
		Pool:     ledger.PoolID(j.PoolID),
		Position: ledger.PositionID(j.PositionID),
		Withdraw: j.Withdraw,
	}, nil
}

type placeLimitOrderJSON struct {
	PoolID     uint32 `json:"pool_id"`
	Tick       int32  `json:"tick"`
	ZeroForOne bool   `json:"zero_for_one"`
	Shares     int64  `json:"shares"`
}

func decodePlaceLimitOrder(data []byte) (*PlaceLimitOrder, error) {
	var j placeLimitOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: place_limit_order: %v", ErrMalformedParams, err)
	}
	return &PlaceLimitOrder{
		Pool:       ledger.PoolID(j.PoolID),
		Tick:       j.Tick,
		ZeroForOne: j.ZeroForOne,
		Shares:     j.Shares,
	}, nil
}

type cancelLimitOrderJSON struct {
	PoolID     uint32 `json:"pool_id"`
	PositionID uint64 `json:"position_id"`
}

func decodeCancelLimitOrder(data []byte) (*CancelLimitOrder, error) {
	var j cancelLimitOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: cancel_limit_order: %v", ErrMalformedParams, err)
	}
	return &CancelLimitOrder{
		Pool:     ledger.PoolID(j.PoolID),
		Position: ledger.PositionID(j.PositionID),
	}, nil
}

type swapJSON struct {
	PoolID       uint32 `json:"pool_id"`
	ZeroForOne   bool   `json:"zero_for_one"`
	AmountIn     int64  `json:"amount_in"`
	MinAmountOut int64  `json:"min_amount_out"`
}

func decodeSwap(data []byte) (*Swap, error) {
	var j swapJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: swap: %v", ErrMalformedParams, err)
	}
	return &Swap{
		Pool:         ledger.PoolID(j.PoolID),
		ZeroForOne:   j.ZeroForOne,
		AmountIn:     j.AmountIn,
		MinAmountOut: j.MinAmountOut,
	}, nil
}

type liquidatePartialJSON struct {
	PoolID     uint32 `json:"pool_id"`
	Victim     string `json:"victim"`
	RepayValue int64  `json:"repay_value"`
}

func decodeLiquidatePartial(data []byte) (*LiquidatePartial, error) {
	var j liquidatePartialJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: liquidate_partial: %v", ErrMalformedParams, err)
	}
	victim, err := uuid.Parse(j.Victim)
	if err != nil {
		return nil, fmt.Errorf("%w: liquidate_partial victim: %v", ErrMalformedParams, err)
	}
	return &LiquidatePartial{
		Pool:       ledger.PoolID(j.PoolID),
		Victim:     victim,
		RepayValue: j.RepayValue,
	}, nil
}

type liquidateFullJSON struct {
	PoolID uint32 `json:"pool_id"`
	Victim string `json:"victim"`
}

func decodeLiquidateFull(data []byte) (*LiquidateFull, error) {
	var j liquidateFullJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: liquidate_full: %v", ErrMalformedParams, err)
	}
	victim, err := uuid.Parse(j.Victim)
	if err != nil {
		return nil, fmt.Errorf("%w: liquidate_full victim: %v", ErrMalformedParams, err)
	}
	return &LiquidateFull{Pool: ledger.PoolID(j.PoolID), Victim: victim}, nil
}

type claimFeesJSON struct {
	PoolID   uint32 `json:"pool_id"`
	Reinvest bool   `json:"reinvest,omitempty"`
}

func decodeClaimFees(data []byte) (*ClaimFees, error) {
	var j claimFeesJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: claim_fees: %v", ErrMalformedParams, err)
	}
	return &ClaimFees{Pool: ledger.PoolID(j.PoolID), Reinvest: j.Reinvest}, nil
}

type poolOnlyJSON struct {
	PoolID uint32 `json:"pool_id"`
}

func decodeCloseVault(data []byte) (*CloseVault, error) {
	var j poolOnlyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: close_vault: %v", ErrMalformedParams, err)
	}
	return &CloseVault{Pool: ledger.PoolID(j.PoolID)}, nil
}

func decodePoke(data []byte) (*Poke, error) {
	var j poolOnlyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: poke: %v", ErrMalformedParams, err)
	}
	return &Poke{Pool: ledger.PoolID(j.PoolID)}, nil
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
