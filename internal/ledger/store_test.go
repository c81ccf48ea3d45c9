package ledger

import (
	"testing"

	"github.com/google/uuid"

	fpmath "BatchLedger/internal/math"
)

func newTestPool(t *testing.T) (*Store, *Pool) {
	t.Helper()
	s := NewStore()
	p := s.AddPool("ETH", "USDC")
	p.Reserve0 = 1_000 * fpmath.ValueConfig.Scale
	p.Reserve1 = 1_000 * fpmath.ValueConfig.Scale
	p.TotalShares = p.Liquidity()
	return s, p
}

func TestPoolLiquidityAndShareValue(t *testing.T) {
	_, p := newTestPool(t)

	wantL := int64(1_000 * fpmath.ValueConfig.Scale)
	if got := p.Liquidity(); got != wantL {
		t.Errorf("Liquidity() = %d, want %d", got, wantL)
	}

	// With no debt, value of all shares equals liquidity.
	if got := p.ValueOfShares(p.TotalShares); got != wantL {
		t.Errorf("ValueOfShares(total) = %d, want %d", got, wantL)
	}

	// Half the shares claim half the value.
	if got := p.ValueOfShares(p.TotalShares / 2); got != wantL/2 {
		t.Errorf("ValueOfShares(half) = %d, want %d", got, wantL/2)
	}
}

func TestTotalCollateralValueInvariantUnderDebt(t *testing.T) {
	_, p := newTestPool(t)
	before := p.TotalCollateralValue()

	// Model a borrow of value 200: reserves shrink proportionally so that
	// liquidity drops by 200, and matching debt shares are minted.
	borrowed := int64(200 * fpmath.ValueConfig.Scale)
	l := p.Liquidity()
	p.Reserve0 -= fpmath.MulDiv(p.Reserve0, borrowed, l, fpmath.RoundUp)
	p.Reserve1 -= fpmath.MulDiv(p.Reserve1, borrowed, l, fpmath.RoundUp)
	p.TotalDebtShares += p.DebtSharesForValue(before - p.Liquidity())

	after := p.TotalCollateralValue()
	diff := after - before
	if diff < -2 || diff > 2 {
		t.Errorf("total collateral value moved by %d under borrow (before=%d after=%d)",
			diff, before, after)
	}
}

func TestUtilization(t *testing.T) {
	_, p := newTestPool(t)
	if got := p.Utilization(); got != 0 {
		t.Errorf("utilization with no debt = %d, want 0", got)
	}

	// Debt worth ~50% of total collateral value.
	p.TotalDebtShares = p.DebtSharesForValue(p.Liquidity())
	util := p.Utilization()
	if util < 490_000 || util > 510_000 {
		t.Errorf("utilization = %d ppm, want ~500000", util)
	}
}

func TestVaultOrCreateCheckpointsFees(t *testing.T) {
	s, p := newTestPool(t)
	p.FeeGrowthGlobal = 42_000

	key := VaultKey{Owner: uuid.New(), Pool: p.ID}
	v := s.VaultOrCreate(key)
	if v.FeeCheckpoint != 42_000 {
		t.Errorf("new vault checkpoint = %d, want 42000", v.FeeCheckpoint)
	}
	if again := s.VaultOrCreate(key); again != v {
		t.Error("VaultOrCreate created a duplicate vault")
	}
}

func TestRemoveVaultRejectsNonEmpty(t *testing.T) {
	s, p := newTestPool(t)
	key := VaultKey{Owner: uuid.New(), Pool: p.ID}
	v := s.VaultOrCreate(key)
	v.Shares = 100

	if err := s.RemoveVault(key); err == nil {
		t.Fatal("expected error removing vault with shares")
	}
	v.Shares = 0
	if err := s.RemoveVault(key); err != nil {
		t.Fatalf("removing empty vault: %v", err)
	}
	if _, ok := s.Vault(key); ok {
		t.Error("vault still present after removal")
	}
}

func TestPositionLifecycle(t *testing.T) {
	s, p := newTestPool(t)
	key := VaultKey{Owner: uuid.New(), Pool: p.ID}
	v := s.VaultOrCreate(key)
	v.Shares = 1_000

	id := s.OpenPosition(&Position{
		Vault:     key,
		Kind:      PositionRange,
		TickLower: -60,
		TickUpper: 60,
		Shares:    400,
	})
	if v.OpenPositions != 1 {
		t.Errorf("open positions = %d, want 1", v.OpenPositions)
	}
	if got := s.LockedShares(key); got != 400 {
		t.Errorf("locked shares = %d, want 400", got)
	}

	if err := s.ClosePosition(id); err != nil {
		t.Fatalf("close position: %v", err)
	}
	if v.OpenPositions != 0 {
		t.Errorf("open positions after close = %d, want 0", v.OpenPositions)
	}
	if err := s.ClosePosition(id); err == nil {
		t.Error("expected error closing twice")
	}
}

func TestValidTicks(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper int32
		want         bool
	}{
		{"normal range", -60, 60, true},
		{"full range", MinTick, MaxTick, true},
		{"inverted", 60, -60, false},
		{"equal", 0, 0, false},
		{"below bound", MinTick - 1, 0, false},
		{"above bound", 0, MaxTick + 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTicks(tt.lower, tt.upper); got != tt.want {
				t.Errorf("ValidTicks(%d, %d) = %v, want %v", tt.lower, tt.upper, got, tt.want)
			}
		})
	}
}

func TestSnapshotRestore(t *testing.T) {
	s, p := newTestPool(t)
	key := VaultKey{Owner: uuid.New(), Pool: p.ID}
	v := s.VaultOrCreate(key)
	v.Shares = 500
	s.OpenPosition(&Position{Vault: key, Kind: PositionRange, TickLower: -10, TickUpper: 10, Shares: 100})

	snap := s.Snapshot()

	// Mutate everything.
	p.Reserve0 = 1
	v.Shares = 0
	v.DebtShares = 77
	s.AddPool("BTC", "USDC")

	s.Restore(snap)

	rp, err := s.Pool(0)
	if err != nil {
		t.Fatal(err)
	}
	if rp.Reserve0 != 1_000*fpmath.ValueConfig.Scale {
		t.Errorf("reserve0 after restore = %d", rp.Reserve0)
	}
	if len(s.Pools()) != 1 {
		t.Errorf("pool count after restore = %d, want 1", len(s.Pools()))
	}
	rv, ok := s.Vault(key)
	if !ok {
		t.Fatal("vault missing after restore")
	}
	if rv.Shares != 500 || rv.DebtShares != 0 {
		t.Errorf("vault after restore = %+v", rv)
	}
	if got := len(s.PositionsForVault(key)); got != 1 {
		t.Errorf("positions after restore = %d, want 1", got)
	}

	// Restoring must not alias snapshot memory.
	rp.Reserve0 = 5
	s.Restore(snap)
	rp2, _ := s.Pool(0)
	if rp2.Reserve0 != 1_000*fpmath.ValueConfig.Scale {
		t.Error("snapshot was mutated by restore aliasing")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s, p := newTestPool(t)
	clone := s.Clone()

	cp, _ := clone.Pool(p.ID)
	cp.Reserve0 = 123

	if p.Reserve0 == 123 {
		t.Error("clone shares pool memory with original")
	}
}

func TestTouchedTrackingDeterministicOrder(t *testing.T) {
	s, _ := newTestPool(t)
	s.AddPool("BTC", "USDC")

	s.TouchPool(1)
	s.TouchPool(0)
	k := VaultKey{Owner: uuid.New(), Pool: 1}
	s.TouchVault(k)

	pools := s.TouchedPools()
	if len(pools) != 2 || pools[0] != 0 || pools[1] != 1 {
		t.Errorf("touched pools = %v", pools)
	}
	vaults := s.TouchedVaults()
	if len(vaults) != 1 || vaults[0] != k {
		t.Errorf("touched vaults = %v", vaults)
	}

	s.ResetTouched()
	if len(s.TouchedPools()) != 0 || len(s.TouchedVaults()) != 0 {
		t.Error("touched sets not cleared")
	}
}
