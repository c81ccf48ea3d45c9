package ledger

// PositionID is assigned sequentially by the store
type PositionID uint64

// Tick bounds of the usable price range.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// PositionKind distinguishes a two-sided range allocation from a
// single-sided limit order.
type PositionKind uint8

const (
	PositionRange PositionKind = iota
	PositionLimitOrder
)

func (k PositionKind) String() string {
	switch k {
	case PositionRange:
		return "range"
	case PositionLimitOrder:
		return "limit_order"
	default:
		return "unknown"
	}
}

// Position is a narrow-range liquidity allocation owned by a vault. Limit
// orders are one-tick positions holding only the input asset; they settle
// when the pool price crosses the tick.
type Position struct {
	ID    PositionID
	Vault VaultKey
	Kind  PositionKind

	TickLower int32
	TickUpper int32

	// Shares of pool collateral committed to the position. The shares stay
	// minted; the position earmarks them so withdraw/close-vault cannot
	// spend them out from under an open allocation.
	Shares int64

	// ZeroForOne is the direction of a limit order: true sells asset0.
	ZeroForOne bool

	// FeeCheckpoint is the pool FeeGrowthGlobal at open, so fees accrued
	// before the position existed are not attributed to it.
	FeeCheckpoint int64

	CreatedUs int64
}

// ValidTicks reports whether the range is inside bounds and well ordered.
func ValidTicks(lower, upper int32) bool {
	return lower >= MinTick && upper <= MaxTick && lower < upper
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}
