package engine

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"BatchLedger/internal/action"
	"BatchLedger/internal/ledger"
)

func TestSwapChargesFeeIntoShareValue(t *testing.T) {
	r := newRig(t)
	alice, bob := uuid.New(), uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))

	before, _ := r.store.Pool(r.pool)
	liquidityBefore := before.Liquidity()

	receipt := r.exec(bob, testT0, &action.Swap{Pool: r.pool, ZeroForOne: true, AmountIn: 100_000})
	mustCommit(t, receipt)

	eff := receipt.Effects[0]
	if eff.Amount0In != 100_000 || eff.Amount1Out <= 0 {
		t.Fatalf("swap amounts: in %d, out %d", eff.Amount0In, eff.Amount1Out)
	}
	if eff.FeeValue <= 0 {
		t.Fatalf("fee value = %d, want positive", eff.FeeValue)
	}

	pool, _ := r.store.Pool(r.pool)
	if pool.Liquidity() <= liquidityBefore {
		t.Fatal("fee should grow pool liquidity")
	}
	if pool.FeeGrowthGlobal <= 0 {
		t.Fatal("fee growth not recorded")
	}
}

func TestSwapSlippageAborts(t *testing.T) {
	r := newRig(t)
	alice, bob := uuid.New(), uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))

	receipt := r.exec(bob, testT0, &action.Swap{
		Pool: r.pool, ZeroForOne: true, AmountIn: 100_000, MinAmountOut: 100_000,
	})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, ErrSlippage.Error()) {
		t.Fatalf("state %s, reason %q", receipt.State, receipt.Reason)
	}
}

func TestClaimFeesPayoutAndReinvest(t *testing.T) {
	r := newRig(t)
	alice, bob := uuid.New(), uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(bob, testT0, &action.Swap{Pool: r.pool, ZeroForOne: true, AmountIn: 500_000}))

	vault, _ := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool})
	sharesBefore := vault.Shares

	receipt := r.exec(alice, testT0, &action.ClaimFees{Pool: r.pool})
	mustCommit(t, receipt)
	eff := receipt.Effects[0]
	if eff.FeeValue <= 0 {
		t.Fatalf("fee owed = %d, want positive", eff.FeeValue)
	}
	if eff.Amount0Out+eff.Amount1Out <= 0 {
		t.Fatal("payout claim returned nothing")
	}
	if vault.Shares >= sharesBefore {
		t.Fatal("payout should burn the fee slice of shares")
	}

	// The checkpoint moved; an immediate second claim owes nothing.
	receipt = r.exec(alice, testT0, &action.ClaimFees{Pool: r.pool})
	mustCommit(t, receipt)
	if receipt.Effects[0].FeeValue != 0 {
		t.Fatalf("second claim owed %d, want 0", receipt.Effects[0].FeeValue)
	}

	// Reinvest settles the checkpoint without touching shares.
	mustCommit(t, r.exec(bob, testT0, &action.Swap{Pool: r.pool, ZeroForOne: false, AmountIn: 500_000}))
	sharesBefore = vault.Shares
	receipt = r.exec(alice, testT0, &action.ClaimFees{Pool: r.pool, Reinvest: true})
	mustCommit(t, receipt)
	if receipt.Effects[0].FeeValue <= 0 {
		t.Fatal("reinvest claim should still report the owed value")
	}
	if vault.Shares != sharesBefore || receipt.Effects[0].SharesBurned != 0 {
		t.Fatal("reinvest must not move shares")
	}
}

func TestLimitOrderSettlement(t *testing.T) {
	r := newRig(t)
	alice, bob := uuid.New(), uuid.New()
	mustCommit(t, r.exec(alice, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000},
		&action.PlaceLimitOrder{Pool: r.pool, Tick: 100, ZeroForOne: true, Shares: 50_000},
	))
	posID := victimPosition(t, r, alice)

	// Price has not crossed the trigger: only the owner may cancel.
	receipt := r.exec(bob, testT0, &action.CancelLimitOrder{Pool: r.pool, Position: posID})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, "not crossed") {
		t.Fatalf("third-party settle before crossing: state %s, reason %q", receipt.State, receipt.Reason)
	}

	// Push the spot price through the trigger tick, then anyone may settle.
	mustCommit(t, r.exec(bob, testT0, &action.Swap{Pool: r.pool, ZeroForOne: false, AmountIn: 50_000}))
	receipt = r.exec(bob, testT0, &action.CancelLimitOrder{Pool: r.pool, Position: posID})
	mustCommit(t, receipt)
	if receipt.Effects[0].Recipient != alice {
		t.Fatal("settlement must credit the order owner")
	}
	if _, err := r.store.Position(posID); err == nil {
		t.Fatal("settled order still open")
	}

	// The owner can always cancel, crossed or not.
	mustCommit(t, r.exec(alice, testT0,
		&action.PlaceLimitOrder{Pool: r.pool, Tick: 5000, ZeroForOne: true, Shares: 50_000}))
	posID = victimPosition(t, r, alice)
	mustCommit(t, r.exec(alice, testT0, &action.CancelLimitOrder{Pool: r.pool, Position: posID}))
}

func TestEarmarkedSharesCannotBeWithdrawn(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000},
		&action.OpenPosition{Pool: r.pool, TickLower: -1000, TickUpper: 1000, Shares: 900_000},
	))

	receipt := r.exec(alice, testT0, &action.Withdraw{Pool: r.pool, Shares: 200_000})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, ErrInsufficientShares.Error()) {
		t.Fatalf("earmarked withdraw: state %s, reason %q", receipt.State, receipt.Reason)
	}

	// Closing the position releases the earmark.
	posID := victimPosition(t, r, alice)
	mustCommit(t, r.exec(alice, testT0,
		&action.ClosePosition{Pool: r.pool, Position: posID},
		&action.Withdraw{Pool: r.pool, Shares: 200_000},
	))
}

func TestCloseVaultSettlesAndRemoves(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 300_000}))

	receipt := r.exec(alice, testT0, &action.CloseVault{Pool: r.pool})
	mustCommit(t, receipt)

	eff := receipt.Effects[0]
	if eff.DebtDelta != -300_000 {
		t.Fatalf("debt settled = %d, want -300000", eff.DebtDelta)
	}
	if eff.Amount0Out <= 0 || eff.Amount1Out <= 0 {
		t.Fatal("remainder not paid out")
	}
	if _, ok := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool}); ok {
		t.Fatal("vault still exists after close")
	}

	pool, _ := r.store.Pool(r.pool)
	if pool.TotalShares != ledger.MinLiquidityLock {
		t.Fatalf("TotalShares = %d, want only the system lock", pool.TotalShares)
	}
	if pool.TotalDebtShares != 0 {
		t.Fatalf("TotalDebtShares = %d, want 0", pool.TotalDebtShares)
	}
}

func TestCloseVaultRejectsOpenPositions(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000},
		&action.OpenPosition{Pool: r.pool, TickLower: -1000, TickUpper: 1000, Shares: 10_000},
	))

	receipt := r.exec(alice, testT0, &action.CloseVault{Pool: r.pool})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, ErrPositionsNotClosed.Error()) {
		t.Fatalf("state %s, reason %q", receipt.State, receipt.Reason)
	}
}

func TestRepaySingleAsset(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 500_000}))

	vault, _ := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool})
	debtBefore := vault.DebtShares

	receipt := r.exec(alice, testT0, &action.RepaySingle{Pool: r.pool, AssetIndex: 0, Amount: 100_000})
	mustCommit(t, receipt)

	eff := receipt.Effects[0]
	if eff.DebtDelta >= 0 || eff.Amount0In != 100_000 {
		t.Fatalf("repay effect: debt delta %d, amount0 %d", eff.DebtDelta, eff.Amount0In)
	}
	// One-sided liquidity is worth less than the raw amount but still
	// retires debt.
	if vault.DebtShares >= debtBefore || -eff.DebtDelta >= 100_000 {
		t.Fatalf("debt shares %d -> %d, repaid %d", debtBefore, vault.DebtShares, -eff.DebtDelta)
	}

	// Overshooting the outstanding debt is rejected outright.
	receipt = r.exec(alice, testT0, &action.RepaySingle{Pool: r.pool, AssetIndex: 1, Amount: 5_000_000})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, ErrExceedsDebt.Error()) {
		t.Fatalf("state %s, reason %q", receipt.State, receipt.Reason)
	}
}
