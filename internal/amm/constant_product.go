package amm

import (
	"errors"
	"fmt"

	"BatchLedger/internal/ledger"
	fpmath "BatchLedger/internal/math"
)

// Liquidity primitive errors surface verbatim to the batch as collaborator
// failures.
var (
	ErrZeroAmount        = errors.New("zero amount")
	ErrEmptyReserves     = errors.New("empty reserves")
	ErrInsufficientDepth = errors.New("insufficient pool depth")
)

// ConstantProduct provides the liquidity and swap primitives over pool
// reserves under the x*y=k rule. It mutates reserves only; share and debt
// bookkeeping stays with the caller.
type ConstantProduct struct{}

func New() *ConstantProduct {
	return &ConstantProduct{}
}

// AddLiquidity adds both amounts to the reserves and returns the liquidity
// gained, sqrt((r0+a0)(r1+a1)) - sqrt(r0*r1).
func (c *ConstantProduct) AddLiquidity(p *ledger.Pool, amount0, amount1 int64) (int64, error) {
	if amount0 <= 0 || amount1 <= 0 {
		return 0, fmt.Errorf("%w: add %d/%d", ErrZeroAmount, amount0, amount1)
	}
	before := p.Liquidity()
	p.Reserve0 += amount0
	p.Reserve1 += amount1
	return p.Liquidity() - before, nil
}

// AddLiquidityOneSide adds a single asset and returns the liquidity gained.
func (c *ConstantProduct) AddLiquidityOneSide(p *ledger.Pool, assetIndex uint8, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: add %d", ErrZeroAmount, amount)
	}
	before := p.Liquidity()
	if assetIndex == 0 {
		p.Reserve0 += amount
	} else {
		p.Reserve1 += amount
	}
	return p.Liquidity() - before, nil
}

// RemoveLiquidity takes liquidity out of the pool as proportional amounts
// of both assets. Rounds amounts down so removal can never overdraw.
func (c *ConstantProduct) RemoveLiquidity(p *ledger.Pool, liquidity int64) (int64, int64, error) {
	if liquidity <= 0 {
		return 0, 0, fmt.Errorf("%w: remove %d", ErrZeroAmount, liquidity)
	}
	l := p.Liquidity()
	if l == 0 {
		return 0, 0, ErrEmptyReserves
	}
	if liquidity > l {
		return 0, 0, fmt.Errorf("%w: remove %d of %d", ErrInsufficientDepth, liquidity, l)
	}
	amount0 := fpmath.MulDiv(p.Reserve0, liquidity, l, fpmath.RoundDown)
	amount1 := fpmath.MulDiv(p.Reserve1, liquidity, l, fpmath.RoundDown)
	p.Reserve0 -= amount0
	p.Reserve1 -= amount1
	return amount0, amount1, nil
}

// SwapExactIn trades amountIn for the other asset at constant product. The
// fee (ppm of input) stays in the reserves; the returned feeGain is the
// liquidity growth it caused, which the caller credits to fee growth.
func (c *ConstantProduct) SwapExactIn(p *ledger.Pool, zeroForOne bool, amountIn, feePpm int64) (amountOut, feeGain int64, err error) {
	if amountIn <= 0 {
		return 0, 0, fmt.Errorf("%w: swap %d", ErrZeroAmount, amountIn)
	}
	if p.Reserve0 == 0 || p.Reserve1 == 0 {
		return 0, 0, ErrEmptyReserves
	}

	reserveIn, reserveOut := p.Reserve0, p.Reserve1
	if !zeroForOne {
		reserveIn, reserveOut = p.Reserve1, p.Reserve0
	}

	effectiveIn := amountIn - fpmath.MulRatio(amountIn, feePpm)
	amountOut = fpmath.MulDiv(reserveOut, effectiveIn, reserveIn+effectiveIn, fpmath.RoundDown)
	if amountOut <= 0 {
		return 0, 0, fmt.Errorf("%w: output rounds to zero", ErrInsufficientDepth)
	}
	if amountOut >= reserveOut {
		return 0, 0, fmt.Errorf("%w: output %d of %d", ErrInsufficientDepth, amountOut, reserveOut)
	}

	before := p.Liquidity()
	if zeroForOne {
		p.Reserve0 += amountIn
		p.Reserve1 -= amountOut
	} else {
		p.Reserve1 += amountIn
		p.Reserve0 -= amountOut
	}
	feeGain = p.Liquidity() - before
	if feeGain < 0 {
		feeGain = 0 // rounding can eat the growth on tiny swaps
	}
	return amountOut, feeGain, nil
}
