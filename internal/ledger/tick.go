package ledger

import (
	stdmath "math"

	fpmath "BatchLedger/internal/math"
)

// TickPrice converts a tick to a spot price (asset1 per asset0) in
// ValueConfig scale: price = 1.0001^tick. Used only for limit-order trigger
// comparison, never for value accounting, so the float intermediate cannot
// leak into share or debt math.
func TickPrice(tick int32) int64 {
	price := stdmath.Pow(1.0001, float64(tick)) * float64(fpmath.ValueConfig.Scale)
	if price >= stdmath.MaxInt64 {
		return stdmath.MaxInt64
	}
	if price < 1 {
		return 1
	}
	return int64(price)
}
