package ledger

import (
	"fmt"

	"github.com/google/uuid"

	fpmath "BatchLedger/internal/math"
)

// SystemOwner owns the vault that holds the minimum-liquidity lock and any
// protocol-side share of liquidation bonuses.
var SystemOwner = uuid.Nil

// VaultKey identifies one user's account in one pool
type VaultKey struct {
	Owner uuid.UUID
	Pool  PoolID
}

func (k VaultKey) String() string {
	return fmt.Sprintf("%s/pool-%d", k.Owner.String(), k.Pool)
}

// Vault tracks one owner's collateral shares and debt shares in a pool.
type Vault struct {
	Key        VaultKey
	Shares     int64
	DebtShares int64

	// FeeCheckpoint is the pool FeeGrowthGlobal value at the vault's last
	// fee settlement. Claimable fees = shares * (global - checkpoint).
	FeeCheckpoint int64

	OpenPositions int
}

// DebtValue converts the vault's debt shares through the pool index.
// Rounds up: borrowers owe at least what they took.
func (v *Vault) DebtValue(p *Pool) int64 {
	if v.DebtShares == 0 {
		return 0
	}
	return fpmath.MulDiv(v.DebtShares, p.DebtIndex, fpmath.IndexConfig.Scale, fpmath.RoundUp)
}

// CollateralValue is the vault's share claim at the current share price.
func (v *Vault) CollateralValue(p *Pool) int64 {
	return p.ValueOfShares(v.Shares)
}

// Empty reports whether the vault holds nothing and can be dropped.
func (v *Vault) Empty() bool {
	return v.Shares == 0 && v.DebtShares == 0 && v.OpenPositions == 0
}

// Clone returns a deep copy.
func (v *Vault) Clone() *Vault {
	cv := *v
	return &cv
}
