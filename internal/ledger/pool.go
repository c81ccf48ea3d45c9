package ledger

import (
	fpmath "BatchLedger/internal/math"
)

// PoolID indexes the dense pool table
type PoolID uint32

// MinLiquidityLock is the share amount locked to the system vault on the
// first deposit into a pool, so total shares can never return to zero.
const MinLiquidityLock = 1000

// Pool is one two-asset liquidity pool with share-based collateral and
// index-based debt accounting. All amounts use ValueConfig scale; DebtIndex
// and FeeGrowthGlobal use IndexConfig scale.
type Pool struct {
	ID     PoolID
	Asset0 string
	Asset1 string

	Reserve0 int64
	Reserve1 int64

	TotalShares     int64
	TotalDebtShares int64
	DebtIndex       int64 // starts at IndexConfig.Scale
	LastAccrualUs   int64 // microseconds, versioned time of last index advance

	// FeeGrowthGlobal accumulates swap fee value per collateral share,
	// IndexConfig scale. Vaults checkpoint it to compute claimable fees.
	FeeGrowthGlobal int64

	BadDebt int64
}

// Liquidity returns sqrt(reserve0 * reserve1), the value of reserves
// currently in the pool.
func (p *Pool) Liquidity() int64 {
	return fpmath.GeometricMean(p.Reserve0, p.Reserve1)
}

// TotalDebtValue converts outstanding debt shares through the debt index.
func (p *Pool) TotalDebtValue() int64 {
	if p.TotalDebtShares == 0 {
		return 0
	}
	return fpmath.MulDiv(p.TotalDebtShares, p.DebtIndex, fpmath.IndexConfig.Scale, fpmath.RoundUp)
}

// TotalCollateralValue is in-pool liquidity plus value owed back by
// borrowers. This is the quantity collateral shares are a claim on.
func (p *Pool) TotalCollateralValue() int64 {
	return p.Liquidity() + p.TotalDebtValue()
}

// ValueOfShares converts collateral shares to value at the current share
// price. Rounds down so holders can never extract more than their claim.
func (p *Pool) ValueOfShares(shares int64) int64 {
	if p.TotalShares == 0 || shares == 0 {
		return 0
	}
	return fpmath.MulDiv(shares, p.TotalCollateralValue(), p.TotalShares, fpmath.RoundDown)
}

// SharesForValue converts a value amount to collateral shares at the current
// share price. Rounds down for mints.
func (p *Pool) SharesForValue(value int64) int64 {
	tcv := p.TotalCollateralValue()
	if tcv == 0 || p.TotalShares == 0 {
		// bootstrap: 1 share per unit of value
		return value
	}
	return fpmath.MulDiv(value, p.TotalShares, tcv, fpmath.RoundDown)
}

// DebtSharesForValue converts a debt value to debt shares. Rounds up so the
// pool never under-records what is owed.
func (p *Pool) DebtSharesForValue(value int64) int64 {
	if value == 0 {
		return 0
	}
	return fpmath.MulDiv(value, fpmath.IndexConfig.Scale, p.DebtIndex, fpmath.RoundUp)
}

// Utilization returns totalDebtValue / totalCollateralValue in ppm.
func (p *Pool) Utilization() int64 {
	return fpmath.Ratio(p.TotalDebtValue(), p.TotalCollateralValue())
}

// SpotPrice returns reserve1/reserve0 in ValueConfig scale, the pool's own
// view of the asset0 price in asset1 terms.
func (p *Pool) SpotPrice() int64 {
	if p.Reserve0 == 0 {
		return 0
	}
	return fpmath.MulDiv(p.Reserve1, fpmath.ValueConfig.Scale, p.Reserve0, fpmath.RoundHalfEven)
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	cp := *p
	return &cp
}
