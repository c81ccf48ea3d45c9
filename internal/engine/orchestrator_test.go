package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BatchLedger/internal/action"
	"BatchLedger/internal/amm"
	"BatchLedger/internal/event"
	"BatchLedger/internal/ledger"
	fpmath "BatchLedger/internal/math"
)

const testT0 = int64(1_700_000_000_000_000)

// fakeSources serves prices, rates, and policies from plain maps and doubles
// as all three collaborator interfaces.
type fakeSources struct {
	prices   map[ledger.PoolID]PriceQuote
	rates    map[ledger.PoolID]int64
	policies map[ledger.PoolID]Policy
	fallback Policy
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		prices:   make(map[ledger.PoolID]PriceQuote),
		rates:    make(map[ledger.PoolID]int64),
		policies: make(map[ledger.PoolID]Policy),
		fallback: Policy{
			InitCF:           800_000,
			MaintCF:          980_000,
			UtilizationCap:   950_000,
			LiquidationBonus: 50_000,
			LiquidatorShare:  fpmath.Ppm,
			SwapFee:          3_000,
		},
	}
}

func (f *fakeSources) SpotPrice(pool ledger.PoolID) (PriceQuote, error) {
	q, ok := f.prices[pool]
	if !ok {
		return PriceQuote{}, fmt.Errorf("no quote for pool %d", pool)
	}
	return q, nil
}

func (f *fakeSources) RatePerSecond(pool ledger.PoolID) (int64, error) {
	return f.rates[pool], nil
}

func (f *fakeSources) PolicyFor(pool ledger.PoolID) (Policy, error) {
	if p, ok := f.policies[pool]; ok {
		return p, nil
	}
	return f.fallback, nil
}

// stubAction carries only a kind, for selector-guard tests.
type stubAction struct{ kind action.Kind }

func (s stubAction) Kind() action.Kind { return s.kind }
func (s stubAction) Validate() error   { return nil }

type rig struct {
	store *ledger.Store
	src   *fakeSources
	orc   *Orchestrator
	pool  ledger.PoolID
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := ledger.NewStore()
	pool := store.AddPool("WETH", "USDC")
	src := newFakeSources()
	src.prices[pool.ID] = PriceQuote{Price: fpmath.ValueConfig.Scale, TimestampUs: testT0}
	orc := NewOrchestrator(store, amm.New(), src, src, src, nil, nil, zerolog.Nop(), nil)
	return &rig{store: store, src: src, orc: orc, pool: pool.ID}
}

// exec submits one batch at nowUs, refreshing every quote to that timestamp.
func (r *rig) exec(caller uuid.UUID, nowUs int64, acts ...action.Action) *Receipt {
	for id, q := range r.src.prices {
		q.TimestampUs = nowUs
		r.src.prices[id] = q
	}
	return r.orc.Execute(&Batch{
		ID:            uuid.New(),
		Caller:        caller,
		Actions:       acts,
		SubmittedAtUs: nowUs,
	})
}

func mustCommit(t *testing.T, r *Receipt) {
	t.Helper()
	if r.State != StateCommitted {
		t.Fatalf("batch aborted: %s", r.Reason)
	}
}

func TestDepositBootstrapAndBorrow(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()

	receipt := r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000})
	mustCommit(t, receipt)

	pool, _ := r.store.Pool(r.pool)
	if pool.TotalShares != 1_000_000 {
		t.Fatalf("TotalShares = %d, want 1000000", pool.TotalShares)
	}
	vault, ok := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool})
	if !ok || vault.Shares != 1_000_000-ledger.MinLiquidityLock {
		t.Fatalf("depositor shares = %v, want %d", vault, 1_000_000-ledger.MinLiquidityLock)
	}
	sys, ok := r.store.Vault(ledger.VaultKey{Owner: ledger.SystemOwner, Pool: r.pool})
	if !ok || sys.Shares != ledger.MinLiquidityLock {
		t.Fatalf("system lock = %v, want %d", sys, ledger.MinLiquidityLock)
	}
	if got := receipt.Effects[0].SharesMinted; got != 999_000 {
		t.Fatalf("effect shares minted = %d, want 999000", got)
	}

	receipt = r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 700_000})
	mustCommit(t, receipt)

	pool, _ = r.store.Pool(r.pool)
	if health := HealthRatio(vault, pool); health >= 980_000 {
		t.Fatalf("health = %d ppm, want below maintenance", health)
	}
	// Borrowing moves value from reserves to debt but never changes the total.
	if tcv := pool.TotalCollateralValue(); tcv < 999_998 || tcv > 1_000_002 {
		t.Fatalf("total collateral value = %d, want ~1000000", tcv)
	}
}

func TestAbortRestoresEverything(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))

	before, _ := r.store.Pool(r.pool)
	reserve0, shares := before.Reserve0, before.TotalShares

	receipt := r.exec(alice, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 500_000, Amount1: 500_000},
		&action.Withdraw{Pool: r.pool, Shares: 10_000_000},
	)
	if receipt.State != StateAborted {
		t.Fatal("expected abort")
	}
	if receipt.FailureIndex != 1 {
		t.Fatalf("FailureIndex = %d, want 1", receipt.FailureIndex)
	}
	if receipt.FailureClass != "capacity" {
		t.Fatalf("FailureClass = %s, want capacity", receipt.FailureClass)
	}

	after, _ := r.store.Pool(r.pool)
	if after.Reserve0 != reserve0 || after.TotalShares != shares {
		t.Fatalf("state not restored: reserve0 %d->%d, shares %d->%d",
			reserve0, after.Reserve0, shares, after.TotalShares)
	}
	vault, _ := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool})
	if vault.Shares != 999_000 {
		t.Fatalf("vault shares = %d, want 999000", vault.Shares)
	}
}

func TestPartitionRescuesUnsafeOrder(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 500_000}))

	// In submission order the withdrawal would exceed in-pool liquidity;
	// only the repay running first makes it affordable.
	pool, _ := r.store.Pool(r.pool)
	if pool.ValueOfShares(999_000) <= pool.Liquidity() {
		t.Fatal("setup broken: withdrawal should not fit before the repay")
	}

	receipt := r.exec(alice, testT0,
		&action.Withdraw{Pool: r.pool, Shares: 999_000},
		&action.Repay{Pool: r.pool, Value: 500_000},
	)
	mustCommit(t, receipt)

	if receipt.Effects[0].Index != 1 || receipt.Effects[1].Index != 0 {
		t.Fatalf("execution order = [%d %d], want repay before withdraw",
			receipt.Effects[0].Index, receipt.Effects[1].Index)
	}
	vault, _ := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool})
	if vault.Shares != 0 || vault.DebtShares != 0 {
		t.Fatalf("vault not emptied: shares %d, debt shares %d", vault.Shares, vault.DebtShares)
	}
}

func TestSelectorGuards(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()

	tests := []struct {
		name string
		act  action.Action
		want string
	}{
		{"blacklisted", stubAction{kind: action.KindAdminLiquidate}, "blacklisted"},
		{"reserved low", stubAction{kind: action.ReservedLow}, "reserved"},
		{"reserved high", stubAction{kind: action.ReservedHigh}, "reserved"},
		{"malformed", &action.Deposit{Pool: r.pool}, "malformed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			receipt := r.exec(alice, testT0, tc.act)
			if receipt.State != StateAborted {
				t.Fatal("expected abort")
			}
			if receipt.FailureIndex != -1 {
				t.Fatalf("FailureIndex = %d, want -1", receipt.FailureIndex)
			}
			if receipt.FailureClass != "validation" {
				t.Fatalf("FailureClass = %s, want validation", receipt.FailureClass)
			}
			if !strings.Contains(receipt.Reason, tc.want) {
				t.Fatalf("reason %q does not mention %q", receipt.Reason, tc.want)
			}
		})
	}
}

func TestBatchShapeGuards(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()

	if receipt := r.exec(alice, testT0); receipt.State != StateAborted {
		t.Fatal("empty batch must abort")
	}

	oversized := make([]action.Action, action.MaxBatchActions+1)
	for i := range oversized {
		oversized[i] = &action.Poke{Pool: r.pool}
	}
	if receipt := r.exec(alice, testT0, oversized...); receipt.State != StateAborted {
		t.Fatal("oversized batch must abort")
	}

	expired := r.orc.Execute(&Batch{
		ID: uuid.New(), Caller: alice,
		Actions:       []action.Action{&action.Poke{Pool: r.pool}},
		SubmittedAtUs: testT0,
		DeadlineUs:    testT0 - 1,
	})
	if expired.State != StateAborted || !strings.Contains(expired.Reason, "deadline") {
		t.Fatalf("expired batch: state %s, reason %q", expired.State, expired.Reason)
	}
}

func TestUtilizationCapAborts(t *testing.T) {
	r := newRig(t)
	alice, bob := uuid.New(), uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(bob, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 700_000}))

	tight := r.src.fallback
	tight.UtilizationCap = 600_000
	r.src.policies[r.pool] = tight

	pool, _ := r.store.Pool(r.pool)
	debtSharesBefore := pool.TotalDebtShares

	receipt := r.exec(bob, testT0, &action.Borrow{Pool: r.pool, Value: 600_000})
	if receipt.State != StateAborted {
		t.Fatal("expected utilization abort")
	}
	if !strings.Contains(receipt.Reason, ErrUtilizationExceeded.Error()) {
		t.Fatalf("reason = %q, want utilization cap", receipt.Reason)
	}
	if receipt.FailureClass != "capacity" {
		t.Fatalf("FailureClass = %s, want capacity", receipt.FailureClass)
	}

	pool, _ = r.store.Pool(r.pool)
	if pool.TotalDebtShares != debtSharesBefore {
		t.Fatalf("debt shares moved on abort: %d -> %d", debtSharesBefore, pool.TotalDebtShares)
	}
}

func TestAccrualOncePerBatch(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	persist := make(chan Output, 64)
	r.orc.persistChan = persist

	mustCommit(t, r.exec(alice, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 500_000}))
	drain(persist)

	r.src.rates[r.pool] = 1_000_000 // 1e-6 per second
	t1 := testT0 + 1_000*1_000_000 // 1000 seconds later

	pool, _ := r.store.Pool(r.pool)
	expected := fpmath.GrowIndex(pool.DebtIndex, 1_000_000, 1_000)

	mustCommit(t, r.exec(alice, t1, &action.Poke{Pool: r.pool}, &action.Poke{Pool: r.pool}))

	pool, _ = r.store.Pool(r.pool)
	if pool.DebtIndex != expected {
		t.Fatalf("DebtIndex = %d, want %d", pool.DebtIndex, expected)
	}
	if pool.LastAccrualUs != t1 {
		t.Fatalf("LastAccrualUs = %d, want %d", pool.LastAccrualUs, t1)
	}

	accruals := 0
	for _, out := range drain(persist) {
		if out.Envelope.EventType == event.EventTypeAccrualApplied {
			accruals++
		}
	}
	if accruals != 1 {
		t.Fatalf("AccrualApplied events = %d, want exactly 1", accruals)
	}

	vault, _ := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool})
	if debt := vault.DebtValue(pool); debt <= 500_000 {
		t.Fatalf("debt = %d, want interest above principal", debt)
	}
}

func TestSimulateLeavesStateUntouched(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()

	receipt := r.orc.Simulate(&Batch{
		ID: uuid.New(), Caller: alice,
		Actions:       []action.Action{&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}},
		SubmittedAtUs: testT0,
	})
	if receipt.State != StateCommitted || !receipt.Simulated || receipt.Committed {
		t.Fatalf("simulate receipt: state %s, simulated %v, committed %v",
			receipt.State, receipt.Simulated, receipt.Committed)
	}
	if len(receipt.Effects) != 1 || receipt.Effects[0].SharesMinted != 999_000 {
		t.Fatalf("simulate effects = %+v", receipt.Effects)
	}

	pool, _ := r.store.Pool(r.pool)
	if pool.TotalShares != 0 || pool.Reserve0 != 0 {
		t.Fatalf("simulate mutated the pool: %+v", pool)
	}
	if _, ok := r.store.Vault(ledger.VaultKey{Owner: alice, Pool: r.pool}); ok {
		t.Fatal("simulate created a vault")
	}
}

func TestReentrancyGuard(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()

	r.orc.inFlight.Store(true)
	receipt := r.exec(alice, testT0, &action.Poke{Pool: r.pool})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, "in flight") {
		t.Fatalf("overlapping batch: state %s, reason %q", receipt.State, receipt.Reason)
	}

	r.orc.inFlight.Store(false)
	mustCommit(t, r.exec(alice, testT0, &action.Poke{Pool: r.pool}))
}

func TestPartialLiquidationBounds(t *testing.T) {
	r := newRig(t)
	victim, liquidator := uuid.New(), uuid.New()
	mustCommit(t, r.exec(victim, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(victim, testT0, &action.Borrow{Pool: r.pool, Value: 700_000}))

	// Tighten the thresholds under the position to make it liquidatable.
	tight := r.src.fallback
	tight.InitCF = 500_000
	tight.MaintCF = 650_000
	r.src.policies[r.pool] = tight

	pool, _ := r.store.Pool(r.pool)
	vv, _ := r.store.Vault(ledger.VaultKey{Owner: victim, Pool: r.pool})
	healthBefore := HealthRatio(vv, pool)
	if healthBefore < tight.MaintCF {
		t.Fatalf("setup broken: health %d ppm not liquidatable", healthBefore)
	}

	receipt := r.exec(liquidator, testT0, &action.LiquidatePartial{
		Pool: r.pool, Victim: victim, RepayValue: 10_000_000,
	})
	mustCommit(t, receipt)

	eff := receipt.Effects[0]
	repaid := -eff.DebtDelta
	if repaid <= 0 {
		t.Fatalf("repaid = %d, want positive", repaid)
	}

	pool, _ = r.store.Pool(r.pool)
	lv, _ := r.store.Vault(ledger.VaultKey{Owner: liquidator, Pool: r.pool})
	seizedValue := pool.ValueOfShares(lv.Shares)
	maxSeized := repaid + fpmath.MulRatio(repaid, tight.LiquidationBonus)
	if seizedValue > maxSeized+2 {
		t.Fatalf("seized %d, bound %d", seizedValue, maxSeized)
	}

	healthAfter := HealthRatio(vv, pool)
	if healthAfter >= healthBefore {
		t.Fatalf("health did not improve: %d -> %d ppm", healthBefore, healthAfter)
	}
	if healthAfter >= tight.MaintCF {
		t.Fatalf("health %d ppm still at or above maintenance", healthAfter)
	}
}

func TestPartialLiquidationUnwindsEarmarkedPositions(t *testing.T) {
	r := newRig(t)
	victim, whale, liquidator := uuid.New(), uuid.New(), uuid.New()
	mustCommit(t, r.exec(victim, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000},
		&action.OpenPosition{Pool: r.pool, TickLower: -1000, TickUpper: 1000, Shares: 900_000},
		&action.Borrow{Pool: r.pool, Value: 700_000},
	))
	posID := victimPosition(t, r, victim)
	mustCommit(t, r.exec(whale, testT0, &action.Deposit{Pool: r.pool, Amount0: 4_000_000, Amount1: 4_000_000}))

	tight := r.src.fallback
	tight.InitCF = 500_000
	tight.MaintCF = 650_000
	r.src.policies[r.pool] = tight

	receipt := r.exec(liquidator, testT0, &action.LiquidatePartial{
		Pool: r.pool, Victim: victim, RepayValue: 10_000_000,
	})
	mustCommit(t, receipt)

	// The seizure outran the victim's free shares, so the earmarking
	// position must be gone and the balance must still cover every
	// remaining earmark.
	key := ledger.VaultKey{Owner: victim, Pool: r.pool}
	vault, _ := r.store.Vault(key)
	if vault.Shares < 0 {
		t.Fatalf("victim shares = %d, want non-negative", vault.Shares)
	}
	if locked := r.store.LockedShares(key); locked > vault.Shares {
		t.Fatalf("earmarked %d shares, balance %d", locked, vault.Shares)
	}
	if _, err := r.store.Position(posID); err == nil {
		t.Fatal("earmarking position survived the seizure")
	}

	receipt = r.exec(victim, testT0, &action.ClosePosition{Pool: r.pool, Position: posID, Withdraw: true})
	if receipt.State != StateAborted || !strings.Contains(receipt.Reason, ErrUnknownPosition.Error()) {
		t.Fatalf("close of unwound position: state %s, reason %q", receipt.State, receipt.Reason)
	}
	vault, _ = r.store.Vault(key)
	if vault.Shares < 0 {
		t.Fatalf("victim shares = %d after close attempt, want non-negative", vault.Shares)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	r := newRig(t)
	alice, bob := uuid.New(), uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(bob, testT0, &action.Deposit{Pool: r.pool, Amount0: 500_000, Amount1: 500_000}))

	vault, _ := r.store.Vault(ledger.VaultKey{Owner: bob, Pool: r.pool})
	receipt := r.exec(bob, testT0, &action.Withdraw{Pool: r.pool, Shares: vault.Shares})
	mustCommit(t, receipt)

	// Burning every minted share pays the deposit back, modulo integer
	// rounding.
	eff := receipt.Effects[0]
	if diff := 500_000 - eff.Amount0Out; diff < 0 || diff > 2 {
		t.Fatalf("amount0 out = %d, want ~500000", eff.Amount0Out)
	}
	if diff := 500_000 - eff.Amount1Out; diff < 0 || diff > 2 {
		t.Fatalf("amount1 out = %d, want ~500000", eff.Amount1Out)
	}
	if vault.Shares != 0 {
		t.Fatalf("vault shares = %d after full withdraw, want 0", vault.Shares)
	}
}

func TestRiskReducingActionsNeverWorsenHealth(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	mustCommit(t, r.exec(alice, testT0, &action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000}))
	mustCommit(t, r.exec(alice, testT0, &action.Borrow{Pool: r.pool, Value: 600_000}))

	key := ledger.VaultKey{Owner: alice, Pool: r.pool}
	steps := []action.Action{
		&action.Repay{Pool: r.pool, Value: 100_000},
		&action.RepaySingle{Pool: r.pool, AssetIndex: 0, Amount: 50_000},
		&action.ClaimFees{Pool: r.pool, Reinvest: true},
		&action.Poke{Pool: r.pool},
		&action.Deposit{Pool: r.pool, Amount0: 100_000, Amount1: 100_000},
	}
	for _, act := range steps {
		vault, _ := r.store.Vault(key)
		pool, _ := r.store.Pool(r.pool)
		before := HealthRatio(vault, pool)

		mustCommit(t, r.exec(alice, testT0, act))

		pool, _ = r.store.Pool(r.pool)
		if after := HealthRatio(vault, pool); after > before {
			t.Fatalf("%s worsened health: %d -> %d ppm", act.Kind(), before, after)
		}
	}
}

func TestFullLiquidationRecordsBadDebt(t *testing.T) {
	r := newRig(t)
	victim, liquidator := uuid.New(), uuid.New()
	mustCommit(t, r.exec(victim, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000},
		&action.Borrow{Pool: r.pool, Value: 700_000},
		&action.PlaceLimitOrder{Pool: r.pool, Tick: 1000, ZeroForOne: true, Shares: 10_000},
	))
	posID := victimPosition(t, r, victim)

	// Let interest run until the debt swamps the collateral.
	r.src.rates[r.pool] = 1_000_000_000
	t1 := testT0 + 999_000*1_000_000

	receipt := r.exec(liquidator, t1, &action.LiquidateFull{Pool: r.pool, Victim: victim})
	mustCommit(t, receipt)

	eff := receipt.Effects[0]
	if eff.BadDebt <= 0 {
		t.Fatal("expected a bad-debt shortfall")
	}
	pool, _ := r.store.Pool(r.pool)
	if pool.BadDebt != eff.BadDebt {
		t.Fatalf("pool bad debt %d, effect %d", pool.BadDebt, eff.BadDebt)
	}
	if eff.SharesBurned != 999_000 {
		t.Fatalf("shares burned = %d, want 999000", eff.SharesBurned)
	}

	vault, _ := r.store.Vault(ledger.VaultKey{Owner: victim, Pool: r.pool})
	if vault.Shares != 0 || vault.DebtShares != 0 || vault.OpenPositions != 0 {
		t.Fatalf("victim vault not cleared: %+v", vault)
	}
	if _, err := r.store.Position(posID); err == nil {
		t.Fatal("victim position survived full liquidation")
	}
}

// victimPosition finds the victim's single open position from setup.
func victimPosition(t *testing.T, r *rig, owner uuid.UUID) ledger.PositionID {
	t.Helper()
	positions := r.store.PositionsForVault(ledger.VaultKey{Owner: owner, Pool: r.pool})
	if len(positions) != 1 {
		t.Fatalf("open positions = %d, want 1", len(positions))
	}
	return positions[0].ID
}

func TestEventStreamForCommittedBatch(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	persist := make(chan Output, 64)
	publish := make(chan Output, 64)
	r.orc.persistChan = persist
	r.orc.publishChan = publish

	mustCommit(t, r.exec(alice, testT0,
		&action.Deposit{Pool: r.pool, Amount0: 1_000_000, Amount1: 1_000_000},
		&action.Poke{Pool: r.pool},
	))

	outs := drain(persist)
	var types []event.EventType
	for _, out := range outs {
		types = append(types, out.Envelope.EventType)
	}
	want := []event.EventType{
		event.EventTypeActionExecuted,
		event.EventTypeActionExecuted,
		event.EventTypeBatchExecuted,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
	for i, out := range outs {
		if out.Envelope.Sequence != int64(i) {
			t.Fatalf("sequence %d = %d, want dense numbering", i, out.Envelope.Sequence)
		}
	}
	if outs[len(outs)-1].Receipt == nil {
		t.Fatal("final output should carry the receipt")
	}
	if published := drain(publish); len(published) != len(outs) {
		t.Fatalf("published %d events, persisted %d", len(published), len(outs))
	}
}

func TestAbortedBatchStillReportsFailingStep(t *testing.T) {
	r := newRig(t)
	alice := uuid.New()
	persist := make(chan Output, 64)
	r.orc.persistChan = persist

	receipt := r.exec(alice, testT0, &action.Withdraw{Pool: r.pool, Shares: 1})
	if receipt.State != StateAborted {
		t.Fatal("expected abort")
	}

	outs := drain(persist)
	if len(outs) != 2 {
		t.Fatalf("events = %d, want ActionExecuted + BatchAborted", len(outs))
	}
	if outs[0].Envelope.EventType != event.EventTypeActionExecuted {
		t.Fatalf("first event = %s", outs[0].Envelope.EventType)
	}
	if outs[1].Envelope.EventType != event.EventTypeBatchAborted {
		t.Fatalf("second event = %s", outs[1].Envelope.EventType)
	}
}

func drain(ch chan Output) []Output {
	var out []Output
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}
