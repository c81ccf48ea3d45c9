package action

import (
	"fmt"

	"github.com/google/uuid"

	"BatchLedger/internal/ledger"
)

// Action is one decoded instruction. Validate checks the parameters in
// isolation; preconditions against ledger state belong to the handlers.
type Action interface {
	Kind() Kind
	Validate() error
}

// Deposit mints collateral shares for a proportional two-asset amount.
type Deposit struct {
	Pool      ledger.PoolID
	Amount0   int64
	Amount1   int64
	MinShares int64
}

func (a *Deposit) Kind() Kind { return KindDeposit }

func (a *Deposit) Validate() error {
	if a.Amount0 <= 0 || a.Amount1 <= 0 {
		return fmt.Errorf("deposit amounts must be positive (got %d, %d)", a.Amount0, a.Amount1)
	}
	if a.MinShares < 0 {
		return fmt.Errorf("negative min shares %d", a.MinShares)
	}
	return nil
}

// Withdraw burns collateral shares and pays out underlying assets.
// A zero Recipient pays the caller.
type Withdraw struct {
	Pool       ledger.PoolID
	Shares     int64
	MinAmount0 int64
	MinAmount1 int64
	Recipient  uuid.UUID
}

func (a *Withdraw) Kind() Kind { return KindWithdraw }

func (a *Withdraw) Validate() error {
	if a.Shares <= 0 {
		return fmt.Errorf("withdraw shares must be positive (got %d)", a.Shares)
	}
	if a.MinAmount0 < 0 || a.MinAmount1 < 0 {
		return fmt.Errorf("negative withdraw minimums (%d, %d)", a.MinAmount0, a.MinAmount1)
	}
	return nil
}

// Borrow mints debt shares worth Value and removes matching liquidity.
type Borrow struct {
	Pool      ledger.PoolID
	Value     int64
	Recipient uuid.UUID
}

func (a *Borrow) Kind() Kind { return KindBorrow }

func (a *Borrow) Validate() error {
	if a.Value <= 0 {
		return fmt.Errorf("borrow value must be positive (got %d)", a.Value)
	}
	return nil
}

// Repay burns debt shares worth Value by returning proportional liquidity.
type Repay struct {
	Pool  ledger.PoolID
	Value int64
}

func (a *Repay) Kind() Kind { return KindRepay }

func (a *Repay) Validate() error {
	if a.Value <= 0 {
		return fmt.Errorf("repay value must be positive (got %d)", a.Value)
	}
	return nil
}

// RepaySingle repays debt with one asset. The repaid value is the liquidity
// gain from adding the amount to one side of the reserves.
type RepaySingle struct {
	Pool       ledger.PoolID
	AssetIndex uint8 // 0 or 1
	Amount     int64
}

func (a *RepaySingle) Kind() Kind { return KindRepaySingle }

func (a *RepaySingle) Validate() error {
	if a.Amount <= 0 {
		return fmt.Errorf("repay amount must be positive (got %d)", a.Amount)
	}
	if a.AssetIndex > 1 {
		return fmt.Errorf("asset index must be 0 or 1 (got %d)", a.AssetIndex)
	}
	return nil
}

// OpenPosition earmarks free collateral shares into a narrow-range
// allocation.
type OpenPosition struct {
	Pool      ledger.PoolID
	TickLower int32
	TickUpper int32
	Shares    int64
}

func (a *OpenPosition) Kind() Kind { return KindOpenPosition }

func (a *OpenPosition) Validate() error {
	if a.Shares <= 0 {
		return fmt.Errorf("position shares must be positive (got %d)", a.Shares)
	}
	if !ledger.ValidTicks(a.TickLower, a.TickUpper) {
		return fmt.Errorf("invalid tick range [%d, %d)", a.TickLower, a.TickUpper)
	}
	return nil
}

// ClosePosition destroys a position. With Withdraw set the released shares
// are burned and paid out instead of returning to free collateral.
type ClosePosition struct {
	Pool     ledger.PoolID
	Position ledger.PositionID
	Withdraw bool
}

func (a *ClosePosition) Kind() Kind { return KindClosePosition }

func (a *ClosePosition) Validate() error {
	if a.Position == 0 {
		return fmt.Errorf("missing position id")
	}
	return nil
}

// PlaceLimitOrder creates a one-tick single-sided position that settles
// when the pool price crosses Tick.
type PlaceLimitOrder struct {
	Pool       ledger.PoolID
	Tick       int32
	ZeroForOne bool
	Shares     int64
}

func (a *PlaceLimitOrder) Kind() Kind { return KindPlaceLimitOrder }

func (a *PlaceLimitOrder) Validate() error {
	if a.Shares <= 0 {
		return fmt.Errorf("order shares must be positive (got %d)", a.Shares)
	}
	if !ledger.ValidTicks(a.Tick, a.Tick+1) {
		return fmt.Errorf("invalid order tick %d", a.Tick)
	}
	return nil
}

// CancelLimitOrder destroys an order position and returns its shares.
// A third party may settle a crossed order; ownership is checked by the
// handler.
type CancelLimitOrder struct {
	Pool     ledger.PoolID
	Position ledger.PositionID
}

func (a *CancelLimitOrder) Kind() Kind { return KindCancelLimitOrder }

func (a *CancelLimitOrder) Validate() error {
	if a.Position == 0 {
		return fmt.Errorf("missing position id")
	}
	return nil
}

// Swap exchanges assets against pool reserves.
type Swap struct {
	Pool         ledger.PoolID
	ZeroForOne   bool
	AmountIn     int64
	MinAmountOut int64
}

func (a *Swap) Kind() Kind { return KindSwap }

func (a *Swap) Validate() error {
	if a.AmountIn <= 0 {
		return fmt.Errorf("swap input must be positive (got %d)", a.AmountIn)
	}
	if a.MinAmountOut < 0 {
		return fmt.Errorf("negative min output %d", a.MinAmountOut)
	}
	return nil
}

// LiquidatePartial repays part of an unhealthy vault's debt and seizes
// collateral plus bonus.
type LiquidatePartial struct {
	Pool       ledger.PoolID
	Victim     uuid.UUID
	RepayValue int64
}

func (a *LiquidatePartial) Kind() Kind { return KindLiquidatePartial }

func (a *LiquidatePartial) Validate() error {
	if a.Victim == uuid.Nil {
		return fmt.Errorf("missing victim")
	}
	if a.RepayValue <= 0 {
		return fmt.Errorf("repay value must be positive (got %d)", a.RepayValue)
	}
	return nil
}

// LiquidateFull seizes all collateral of a deeply undercollateralized vault.
type LiquidateFull struct {
	Pool   ledger.PoolID
	Victim uuid.UUID
}

func (a *LiquidateFull) Kind() Kind { return KindLiquidateFull }

func (a *LiquidateFull) Validate() error {
	if a.Victim == uuid.Nil {
		return fmt.Errorf("missing victim")
	}
	return nil
}

// ClaimFees realizes accrued fee growth. With Reinvest the value is minted
// as new collateral shares; otherwise it is paid out.
type ClaimFees struct {
	Pool     ledger.PoolID
	Reinvest bool
}

func (a *ClaimFees) Kind() Kind { return KindClaimFees }

func (a *ClaimFees) Validate() error { return nil }

// CloseVault repays all debt from collateral and withdraws the remainder.
type CloseVault struct {
	Pool ledger.PoolID
}

func (a *CloseVault) Kind() Kind { return KindCloseVault }

func (a *CloseVault) Validate() error { return nil }

// Poke refreshes accrual bookkeeping only.
type Poke struct {
	Pool ledger.PoolID
}

func (a *Poke) Kind() Kind { return KindPoke }

func (a *Poke) Validate() error { return nil }
