package engine

import (
	"BatchLedger/internal/ledger"
)

// PriceQuote is one spot price observation. Price is asset1 per asset0 in
// ValueConfig scale; TimestampUs is the observation's versioned time.
type PriceQuote struct {
	Price       int64
	TimestampUs int64
}

// PriceSource provides spot prices. Read-only to the engine.
type PriceSource interface {
	SpotPrice(pool ledger.PoolID) (PriceQuote, error)
}

// RateSource provides the per-second borrow interest rate, RateConfig scale.
type RateSource interface {
	RatePerSecond(pool ledger.PoolID) (int64, error)
}

// Policy holds the per-pool risk parameters. All fields are ppm.
type Policy struct {
	// InitCF is the max health ratio permitted when opening new debt.
	InitCF int64
	// MaintCF is the health ratio at which liquidation becomes eligible;
	// the verifier aborts any state at or above it.
	MaintCF int64
	// UtilizationCap bounds totalDebtValue / totalCollateralValue.
	UtilizationCap int64
	// LiquidationBonus is the premium on seized collateral.
	LiquidationBonus int64
	// LiquidatorShare is the fraction of the bonus paid to the liquidator;
	// the rest accrues to the system vault.
	LiquidatorShare int64
	// SwapFee is charged on swap input and folded into fee growth.
	SwapFee int64
}

// PolicySource provides risk parameters. Read-only to the engine.
type PolicySource interface {
	PolicyFor(pool ledger.PoolID) (Policy, error)
}

// Venue provides the liquidity and swap primitives consumed by handlers.
// Implementations mutate pool reserves only.
type Venue interface {
	AddLiquidity(p *ledger.Pool, amount0, amount1 int64) (liquidity int64, err error)
	AddLiquidityOneSide(p *ledger.Pool, assetIndex uint8, amount int64) (liquidity int64, err error)
	RemoveLiquidity(p *ledger.Pool, liquidity int64) (amount0, amount1 int64, err error)
	SwapExactIn(p *ledger.Pool, zeroForOne bool, amountIn, feePpm int64) (amountOut, feeGain int64, err error)
}
