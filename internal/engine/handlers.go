package engine

import (
	"fmt"

	"github.com/google/uuid"

	"BatchLedger/internal/action"
	"BatchLedger/internal/ledger"
	fpmath "BatchLedger/internal/math"
)

// Handlers holds the per-kind state-transition functions. Each handler
// mutates the store through the venue primitives, marks what it touched,
// and returns an effect record; the verifier gates the result afterwards.
type Handlers struct {
	store    *ledger.Store
	venue    Venue
	policies PolicySource
	prices   PriceSource
}

func NewHandlers(store *ledger.Store, venue Venue, policies PolicySource, prices PriceSource) *Handlers {
	return &Handlers{store: store, venue: venue, policies: policies, prices: prices}
}

// Apply dispatches one scheduled action. The type switch is exhaustive over
// executable kinds; an unhandled type is a programming error.
func (h *Handlers) Apply(caller uuid.UUID, s Scheduled, nowUs int64) (Effect, error) {
	switch act := s.Action.(type) {
	case *action.Deposit:
		return h.applyDeposit(caller, s.Index, act)
	case *action.Withdraw:
		return h.applyWithdraw(caller, s.Index, act)
	case *action.Borrow:
		return h.applyBorrow(caller, s.Index, act)
	case *action.Repay:
		return h.applyRepay(caller, s.Index, act)
	case *action.RepaySingle:
		return h.applyRepaySingle(caller, s.Index, act)
	case *action.OpenPosition:
		return h.applyOpenPosition(caller, s.Index, act, nowUs)
	case *action.ClosePosition:
		return h.applyClosePosition(caller, s.Index, act)
	case *action.PlaceLimitOrder:
		return h.applyPlaceLimitOrder(caller, s.Index, act, nowUs)
	case *action.CancelLimitOrder:
		return h.applyCancelLimitOrder(caller, s.Index, act)
	case *action.Swap:
		return h.applySwap(caller, s.Index, act)
	case *action.LiquidatePartial:
		return h.applyLiquidatePartial(caller, s.Index, act)
	case *action.LiquidateFull:
		return h.applyLiquidateFull(caller, s.Index, act)
	case *action.ClaimFees:
		return h.applyClaimFees(caller, s.Index, act)
	case *action.CloseVault:
		return h.applyCloseVault(caller, s.Index, act)
	case *action.Poke:
		return h.applyPoke(caller, s.Index, act)
	default:
		panic(fmt.Sprintf("no handler for action %T", s.Action))
	}
}

func (h *Handlers) pool(id ledger.PoolID) (*ledger.Pool, error) {
	p, err := h.store.Pool(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPool, id)
	}
	return p, nil
}

// freeShares is the vault's share balance not earmarked by open positions.
func (h *Handlers) freeShares(v *ledger.Vault) int64 {
	return v.Shares - h.store.LockedShares(v.Key)
}

func (h *Handlers) applyDeposit(caller uuid.UUID, index int, act *action.Deposit) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}

	// Share price is fixed before the reserves move.
	tcvBefore := pool.TotalCollateralValue()
	sharesBefore := pool.TotalShares

	gained, err := h.venue.AddLiquidity(pool, act.Amount0, act.Amount1)
	if err != nil {
		return Effect{}, err
	}

	var minted int64
	if sharesBefore == 0 {
		minted = gained
	} else {
		minted = fpmath.MulDiv(gained, sharesBefore, tcvBefore, fpmath.RoundDown)
	}

	lock := int64(0)
	if sharesBefore == 0 {
		// First deposit locks a floor of shares to the system vault so
		// totalShares never returns to zero.
		lock = ledger.MinLiquidityLock
		if minted <= lock {
			return Effect{}, fmt.Errorf("%w: deposit mints %d shares, below the %d lock",
				ErrInsufficientCollateral, minted, lock)
		}
		sys := h.store.VaultOrCreate(ledger.VaultKey{Owner: ledger.SystemOwner, Pool: act.Pool})
		sys.Shares += lock
		h.store.TouchVault(sys.Key)
	}

	credited := minted - lock
	if credited < act.MinShares {
		return Effect{}, fmt.Errorf("%w: minted %d shares, minimum %d", ErrSlippage, credited, act.MinShares)
	}

	vault := h.store.VaultOrCreate(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	vault.Shares += credited
	pool.TotalShares += minted
	h.store.TouchVault(vault.Key)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		SharesMinted: credited,
		Amount0In:    act.Amount0,
		Amount1In:    act.Amount1,
	}, nil
}

func (h *Handlers) applyWithdraw(caller uuid.UUID, index int, act *action.Withdraw) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok {
		return Effect{}, fmt.Errorf("%w: no vault for %s in pool %d", ErrInsufficientShares, caller, act.Pool)
	}
	if act.Shares > h.freeShares(vault) {
		return Effect{}, fmt.Errorf("%w: want %d, free %d", ErrInsufficientShares, act.Shares, h.freeShares(vault))
	}

	value := pool.ValueOfShares(act.Shares)
	if value > pool.Liquidity() {
		// Reserves cannot cover the claim; the rest is lent out.
		return Effect{}, fmt.Errorf("%w: payout %d exceeds in-pool liquidity %d", ErrInsufficientLiquidity, value, pool.Liquidity())
	}

	amount0, amount1, err := h.venue.RemoveLiquidity(pool, value)
	if err != nil {
		return Effect{}, err
	}
	if amount0 < act.MinAmount0 || amount1 < act.MinAmount1 {
		return Effect{}, fmt.Errorf("%w: payout %d/%d, minimum %d/%d", ErrSlippage, amount0, amount1, act.MinAmount0, act.MinAmount1)
	}

	vault.Shares -= act.Shares
	pool.TotalShares -= act.Shares
	h.store.TouchVault(vault.Key)

	recipient := act.Recipient
	if recipient == uuid.Nil {
		recipient = caller
	}

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		SharesBurned: act.Shares,
		Amount0Out:   amount0,
		Amount1Out:   amount1,
		Recipient:    recipient,
	}, nil
}

func (h *Handlers) applyBorrow(caller uuid.UUID, index int, act *action.Borrow) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	policy, err := h.policies.PolicyFor(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok {
		return Effect{}, fmt.Errorf("%w: borrow with no collateral", ErrExceedsInitCF)
	}

	// Capacity checks run before any mutation.
	collateral := vault.CollateralValue(pool)
	debt := vault.DebtValue(pool)
	maxDebt := fpmath.MulRatio(collateral, policy.InitCF)
	if debt+act.Value > maxDebt {
		return Effect{}, fmt.Errorf("%w: debt %d + %d > %d", ErrExceedsInitCF, debt, act.Value, maxDebt)
	}

	// Borrow leaves totalCollateralValue unchanged, so post-utilization is
	// computable up front.
	tcv := pool.TotalCollateralValue()
	postUtil := fpmath.Ratio(pool.TotalDebtValue()+act.Value, tcv)
	if postUtil > policy.UtilizationCap {
		return Effect{}, fmt.Errorf("%w: would reach %d ppm, cap %d ppm", ErrUtilizationExceeded, postUtil, policy.UtilizationCap)
	}

	debtShares := pool.DebtSharesForValue(act.Value)
	amount0, amount1, err := h.venue.RemoveLiquidity(pool, act.Value)
	if err != nil {
		return Effect{}, err
	}

	vault.DebtShares += debtShares
	pool.TotalDebtShares += debtShares
	h.store.TouchVault(vault.Key)

	recipient := act.Recipient
	if recipient == uuid.Nil {
		recipient = caller
	}

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		DebtDelta:  act.Value,
		Amount0Out: amount0,
		Amount1Out: amount1,
		Recipient:  recipient,
	}, nil
}

func (h *Handlers) applyRepay(caller uuid.UUID, index int, act *action.Repay) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok || vault.DebtShares == 0 {
		return Effect{}, fmt.Errorf("%w: no outstanding debt", ErrExceedsDebt)
	}
	debt := vault.DebtValue(pool)
	if act.Value > debt {
		return Effect{}, fmt.Errorf("%w: repay %d, debt %d", ErrExceedsDebt, act.Value, debt)
	}

	// Proportional amounts grow liquidity by exactly the repaid value:
	// adding k*reserves scales sqrt(r0*r1) by (1+k).
	l := pool.Liquidity()
	amount0 := fpmath.MulDiv(pool.Reserve0, act.Value, l, fpmath.RoundUp)
	amount1 := fpmath.MulDiv(pool.Reserve1, act.Value, l, fpmath.RoundUp)
	gained, err := h.venue.AddLiquidity(pool, amount0, amount1)
	if err != nil {
		return Effect{}, err
	}

	burned := pool.DebtSharesForValue(gained)
	if burned > vault.DebtShares {
		burned = vault.DebtShares
	}
	vault.DebtShares -= burned
	pool.TotalDebtShares -= burned
	h.store.TouchVault(vault.Key)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		DebtDelta: -gained,
		Amount0In: amount0,
		Amount1In: amount1,
	}, nil
}

func (h *Handlers) applyRepaySingle(caller uuid.UUID, index int, act *action.RepaySingle) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok || vault.DebtShares == 0 {
		return Effect{}, fmt.Errorf("%w: no outstanding debt", ErrExceedsDebt)
	}
	debt := vault.DebtValue(pool)

	gained, err := h.venue.AddLiquidityOneSide(pool, act.AssetIndex, act.Amount)
	if err != nil {
		return Effect{}, err
	}
	if gained > debt {
		return Effect{}, fmt.Errorf("%w: single-asset repay worth %d, debt %d", ErrExceedsDebt, gained, debt)
	}

	burned := pool.DebtSharesForValue(gained)
	if burned > vault.DebtShares {
		burned = vault.DebtShares
	}
	vault.DebtShares -= burned
	pool.TotalDebtShares -= burned
	h.store.TouchVault(vault.Key)

	eff := Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		DebtDelta: -gained,
	}
	if act.AssetIndex == 0 {
		eff.Amount0In = act.Amount
	} else {
		eff.Amount1In = act.Amount
	}
	return eff, nil
}

func (h *Handlers) applyOpenPosition(caller uuid.UUID, index int, act *action.OpenPosition, nowUs int64) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok || h.freeShares(vault) < act.Shares {
		return Effect{}, fmt.Errorf("%w: position needs %d free shares", ErrInsufficientCollateral, act.Shares)
	}

	id := h.store.OpenPosition(&ledger.Position{
		Vault:         vault.Key,
		Kind:          ledger.PositionRange,
		TickLower:     act.TickLower,
		TickUpper:     act.TickUpper,
		Shares:        act.Shares,
		FeeCheckpoint: pool.FeeGrowthGlobal,
		CreatedUs:     nowUs,
	})
	h.store.TouchVault(vault.Key)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		Position: id,
	}, nil
}

func (h *Handlers) applyClosePosition(caller uuid.UUID, index int, act *action.ClosePosition) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	pos, err := h.store.Position(act.Position)
	if err != nil {
		return Effect{}, fmt.Errorf("%w: %d", ErrUnknownPosition, act.Position)
	}
	if pos.Vault.Owner != caller || pos.Vault.Pool != act.Pool {
		return Effect{}, fmt.Errorf("%w: position %d", ErrUnauthorized, act.Position)
	}
	vault, ok := h.store.Vault(pos.Vault)
	if !ok {
		return Effect{}, fmt.Errorf("%w: position %d has no vault", ErrUnknownPosition, act.Position)
	}

	if err := h.store.ClosePosition(pos.ID); err != nil {
		return Effect{}, err
	}
	h.store.TouchVault(vault.Key)

	eff := Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		Position: pos.ID,
	}

	if act.Withdraw {
		if pos.Shares > vault.Shares {
			return Effect{}, fmt.Errorf("%w: position claims %d shares, vault holds %d", ErrInsufficientShares, pos.Shares, vault.Shares)
		}
		// Paying out is a withdrawal: burn the released shares.
		value := pool.ValueOfShares(pos.Shares)
		if value > pool.Liquidity() {
			return Effect{}, fmt.Errorf("%w: payout %d exceeds in-pool liquidity %d", ErrInsufficientLiquidity, value, pool.Liquidity())
		}
		amount0, amount1, err := h.venue.RemoveLiquidity(pool, value)
		if err != nil {
			return Effect{}, err
		}
		vault.Shares -= pos.Shares
		pool.TotalShares -= pos.Shares
		eff.SharesBurned = pos.Shares
		eff.Amount0Out = amount0
		eff.Amount1Out = amount1
		eff.Recipient = caller
	}

	return eff, nil
}

func (h *Handlers) applyPlaceLimitOrder(caller uuid.UUID, index int, act *action.PlaceLimitOrder, nowUs int64) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok || h.freeShares(vault) < act.Shares {
		return Effect{}, fmt.Errorf("%w: order needs %d free shares", ErrInsufficientCollateral, act.Shares)
	}

	id := h.store.OpenPosition(&ledger.Position{
		Vault:         vault.Key,
		Kind:          ledger.PositionLimitOrder,
		TickLower:     act.Tick,
		TickUpper:     act.Tick + 1,
		Shares:        act.Shares,
		ZeroForOne:    act.ZeroForOne,
		FeeCheckpoint: pool.FeeGrowthGlobal,
		CreatedUs:     nowUs,
	})
	h.store.TouchVault(vault.Key)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		Position: id,
	}, nil
}

func (h *Handlers) applyCancelLimitOrder(caller uuid.UUID, index int, act *action.CancelLimitOrder) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	pos, err := h.store.Position(act.Position)
	if err != nil {
		return Effect{}, fmt.Errorf("%w: %d", ErrUnknownPosition, act.Position)
	}
	if pos.Kind != ledger.PositionLimitOrder || pos.Vault.Pool != act.Pool {
		return Effect{}, fmt.Errorf("%w: position %d is not an order in pool %d", ErrUnknownPosition, act.Position, act.Pool)
	}

	// The owner may always cancel. A third party may only settle an order
	// whose trigger the pool price has crossed.
	settledByThirdParty := pos.Vault.Owner != caller
	if settledByThirdParty && !orderCrossed(pos, pool) {
		return Effect{}, fmt.Errorf("%w: order %d not crossed", ErrUnauthorized, act.Position)
	}

	if err := h.store.ClosePosition(pos.ID); err != nil {
		return Effect{}, err
	}
	h.store.TouchVault(pos.Vault)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		Position:  pos.ID,
		Recipient: pos.Vault.Owner,
	}, nil
}

// orderCrossed reports whether the pool price has crossed a limit order's
// trigger tick.
func orderCrossed(pos *ledger.Position, pool *ledger.Pool) bool {
	spot := pool.SpotPrice()
	if pos.ZeroForOne {
		return spot >= ledger.TickPrice(pos.TickUpper)
	}
	return spot <= ledger.TickPrice(pos.TickLower)
}

func (h *Handlers) applySwap(caller uuid.UUID, index int, act *action.Swap) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	policy, err := h.policies.PolicyFor(act.Pool)
	if err != nil {
		return Effect{}, err
	}

	out, feeGain, err := h.venue.SwapExactIn(pool, act.ZeroForOne, act.AmountIn, policy.SwapFee)
	if err != nil {
		return Effect{}, err
	}
	if out < act.MinAmountOut {
		return Effect{}, fmt.Errorf("%w: output %d, minimum %d", ErrSlippage, out, act.MinAmountOut)
	}

	// The fee stays in the reserves; fee growth attributes it per share.
	if feeGain > 0 && pool.TotalShares > 0 {
		pool.FeeGrowthGlobal += fpmath.MulDiv(feeGain, fpmath.IndexConfig.Scale, pool.TotalShares, fpmath.RoundDown)
	}
	h.store.TouchPool(act.Pool)

	eff := Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		FeeValue:  feeGain,
		Recipient: caller,
	}
	if act.ZeroForOne {
		eff.Amount0In = act.AmountIn
		eff.Amount1Out = out
	} else {
		eff.Amount1In = act.AmountIn
		eff.Amount0Out = out
	}
	return eff, nil
}

func (h *Handlers) applyLiquidatePartial(caller uuid.UUID, index int, act *action.LiquidatePartial) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	policy, err := h.policies.PolicyFor(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	victim, ok := h.store.Vault(ledger.VaultKey{Owner: act.Victim, Pool: act.Pool})
	if !ok || victim.DebtShares == 0 {
		return Effect{}, fmt.Errorf("%w: victim %s has no debt", ErrNotEligible, act.Victim)
	}

	debt := victim.DebtValue(pool)
	collateral := victim.CollateralValue(pool)
	health := HealthRatio(victim, pool)
	if health < policy.MaintCF {
		return Effect{}, fmt.Errorf("%w: victim health %d ppm below threshold %d ppm", ErrNotEligible, health, policy.MaintCF)
	}

	repay := liquidationRepayCap(debt, collateral, policy)
	if repay > act.RepayValue {
		repay = act.RepayValue
	}
	if repay <= 0 {
		return Effect{}, fmt.Errorf("%w: nothing to repay", ErrInsufficientRepay)
	}

	// Liquidator returns proportional liquidity worth the repaid value.
	l := pool.Liquidity()
	amount0 := fpmath.MulDiv(pool.Reserve0, repay, l, fpmath.RoundUp)
	amount1 := fpmath.MulDiv(pool.Reserve1, repay, l, fpmath.RoundUp)
	gained, err := h.venue.AddLiquidity(pool, amount0, amount1)
	if err != nil {
		return Effect{}, err
	}

	burned := pool.DebtSharesForValue(gained)
	if burned > victim.DebtShares {
		burned = victim.DebtShares
	}
	victim.DebtShares -= burned
	pool.TotalDebtShares -= burned

	// Seized value = repaid * (1 + bonus), capped by what the victim holds.
	seizedValue := gained + fpmath.MulRatio(gained, policy.LiquidationBonus)
	seizedShares := pool.SharesForValue(seizedValue)
	if seizedShares > victim.Shares {
		seizedShares = victim.Shares
		seizedValue = pool.ValueOfShares(seizedShares)
	}

	// Seizure may reach into shares earmarked by open positions. Unwind the
	// victim's positions in ID order until the freed balance covers it, so
	// the earmarked total never exceeds the share balance.
	free := h.freeShares(victim)
	if seizedShares > free {
		for _, pos := range h.store.PositionsForVault(victim.Key) {
			if err := h.store.ClosePosition(pos.ID); err != nil {
				return Effect{}, err
			}
			free += pos.Shares
			if seizedShares <= free {
				break
			}
		}
	}
	victim.Shares -= seizedShares

	// Bonus split: LiquidatorShare ppm of the seized shares go to the
	// caller, the remainder to the system vault.
	liquidatorShares := fpmath.MulRatio(seizedShares, policy.LiquidatorShare)
	systemShares := seizedShares - liquidatorShares

	liqVault := h.store.VaultOrCreate(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	liqVault.Shares += liquidatorShares
	if systemShares > 0 {
		sys := h.store.VaultOrCreate(ledger.VaultKey{Owner: ledger.SystemOwner, Pool: act.Pool})
		sys.Shares += systemShares
		h.store.TouchVault(sys.Key)
	}

	h.store.TouchVault(victim.Key)
	h.store.TouchVault(liqVault.Key)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		DebtDelta:    -gained,
		Amount0In:    amount0,
		Amount1In:    amount1,
		SharesMinted: liquidatorShares, // seized into the liquidator's vault
		Recipient:    act.Victim,
	}, nil
}

// liquidationRepayCap is the repay amount that brings the victim back to
// the initial collateral factor:
//
//	(debt - target*collateral) / (1 - target*(1+bonus))
//
// When the denominator is non-positive the bonus outruns the target and the
// cap degenerates to the full debt.
func liquidationRepayCap(debt, collateral int64, policy Policy) int64 {
	target := policy.InitCF
	numerator := debt - fpmath.MulRatio(collateral, target)
	if numerator <= 0 {
		return 0
	}
	denomPpm := fpmath.Ppm - fpmath.MulDiv(target, fpmath.Ppm+policy.LiquidationBonus, fpmath.Ppm, fpmath.RoundHalfEven)
	if denomPpm <= 0 {
		return debt
	}
	cap := fpmath.MulDiv(numerator, fpmath.Ppm, denomPpm, fpmath.RoundUp)
	if cap > debt {
		cap = debt
	}
	return cap
}

func (h *Handlers) applyLiquidateFull(caller uuid.UUID, index int, act *action.LiquidateFull) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	victim, ok := h.store.Vault(ledger.VaultKey{Owner: act.Victim, Pool: act.Pool})
	if !ok || victim.DebtShares == 0 {
		return Effect{}, fmt.Errorf("%w: victim %s has no debt", ErrNotEligible, act.Victim)
	}

	debt := victim.DebtValue(pool)
	collateral := victim.CollateralValue(pool)
	if debt < collateral {
		return Effect{}, fmt.Errorf("%w: debt %d below collateral %d, use partial liquidation", ErrNotEligible, debt, collateral)
	}

	// All collateral is burned against the debt; the uncovered remainder
	// is booked as pool bad debt rather than silently dropped.
	covered := collateral
	if covered > debt {
		covered = debt
	}
	shortfall := debt - covered

	pool.TotalShares -= victim.Shares
	seizedShares := victim.Shares
	victim.Shares = 0

	pool.TotalDebtShares -= victim.DebtShares
	victim.DebtShares = 0

	if shortfall > 0 {
		pool.BadDebt += shortfall
	}

	// Orders and range allocations of a fully liquidated vault are
	// destroyed with it.
	for _, pos := range h.store.PositionsForVault(victim.Key) {
		if err := h.store.ClosePosition(pos.ID); err != nil {
			return Effect{}, err
		}
	}

	h.store.TouchVault(victim.Key)

	return Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		DebtDelta:    -covered,
		SharesBurned: seizedShares,
		BadDebt:      shortfall,
		Recipient:    act.Victim,
	}, nil
}

func (h *Handlers) applyClaimFees(caller uuid.UUID, index int, act *action.ClaimFees) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	vault, ok := h.store.Vault(ledger.VaultKey{Owner: caller, Pool: act.Pool})
	if !ok {
		return Effect{}, fmt.Errorf("%w: no vault for %s in pool %d", ErrUnauthorized, caller, act.Pool)
	}

	growth := pool.FeeGrowthGlobal - vault.FeeCheckpoint
	owed := fpmath.MulDiv(vault.Shares, growth, fpmath.IndexConfig.Scale, fpmath.RoundDown)
	vault.FeeCheckpoint = pool.FeeGrowthGlobal
	h.store.TouchVault(vault.Key)

	eff := Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		FeeValue: owed,
	}
	if owed == 0 || act.Reinvest {
		// Fee value is already embedded in the share price; reinvesting
		// is a checkpoint-only settlement.
		return eff, nil
	}

	// Paying out realizes the fee slice as a partial withdrawal.
	eq := pool.SharesForValue(owed)
	if eq > h.freeShares(vault) {
		eq = h.freeShares(vault)
		owed = pool.ValueOfShares(eq)
	}
	if eq == 0 {
		return eff, nil
	}
	if owed > pool.Liquidity() {
		return Effect{}, fmt.Errorf("%w: fee payout %d exceeds in-pool liquidity %d", ErrInsufficientLiquidity, owed, pool.Liquidity())
	}
	amount0, amount1, err := h.venue.RemoveLiquidity(pool, owed)
	if err != nil {
		return Effect{}, err
	}
	vault.Shares -= eq
	pool.TotalShares -= eq

	eff.SharesBurned = eq
	eff.Amount0Out = amount0
	eff.Amount1Out = amount1
	eff.Recipient = caller
	return eff, nil
}

func (h *Handlers) applyCloseVault(caller uuid.UUID, index int, act *action.CloseVault) (Effect, error) {
	pool, err := h.pool(act.Pool)
	if err != nil {
		return Effect{}, err
	}
	key := ledger.VaultKey{Owner: caller, Pool: act.Pool}
	vault, ok := h.store.Vault(key)
	if !ok {
		return Effect{}, fmt.Errorf("%w: no vault for %s in pool %d", ErrUnauthorized, caller, act.Pool)
	}
	if vault.OpenPositions > 0 {
		return Effect{}, fmt.Errorf("%w: %d open", ErrPositionsNotClosed, vault.OpenPositions)
	}

	debt := vault.DebtValue(pool)
	collateral := vault.CollateralValue(pool)
	if collateral < debt {
		return Effect{}, fmt.Errorf("%w: collateral %d below debt %d", ErrInsufficientCollateral, collateral, debt)
	}

	eff := Effect{
		Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool,
		Recipient: caller,
	}

	if debt > 0 {
		// Repay from collateral: burn shares worth the debt against the
		// debt shares, value-neutral for everyone else.
		eq := pool.SharesForValue(debt)
		if eq > vault.Shares {
			eq = vault.Shares
		}
		vault.Shares -= eq
		pool.TotalShares -= eq
		pool.TotalDebtShares -= vault.DebtShares
		vault.DebtShares = 0
		eff.DebtDelta = -debt
		eff.SharesBurned += eq
	}

	if vault.Shares > 0 {
		remainder := pool.ValueOfShares(vault.Shares)
		if remainder > pool.Liquidity() {
			return Effect{}, fmt.Errorf("%w: payout %d exceeds in-pool liquidity %d", ErrInsufficientLiquidity, remainder, pool.Liquidity())
		}
		amount0, amount1, err := h.venue.RemoveLiquidity(pool, remainder)
		if err != nil {
			return Effect{}, err
		}
		eff.SharesBurned += vault.Shares
		pool.TotalShares -= vault.Shares
		vault.Shares = 0
		eff.Amount0Out = amount0
		eff.Amount1Out = amount1
	}

	h.store.TouchVault(key)
	if err := h.store.RemoveVault(key); err != nil {
		return Effect{}, err
	}

	return eff, nil
}

func (h *Handlers) applyPoke(caller uuid.UUID, index int, act *action.Poke) (Effect, error) {
	if _, err := h.pool(act.Pool); err != nil {
		return Effect{}, err
	}
	// Accrual already ran once for this batch; poke only marks the pool
	// so the verifier re-checks it.
	h.store.TouchPool(act.Pool)
	return Effect{Index: index, Kind: act.Kind(), Actor: caller, Pool: act.Pool}, nil
}
