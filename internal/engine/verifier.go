package engine

import (
	"fmt"

	"BatchLedger/internal/ledger"
	fpmath "BatchLedger/internal/math"
)

// Verifier is the pure predicate gating every mutation: price sanity, vault
// health, pool utilization. It never corrects state; a violation aborts the
// whole batch.
type Verifier struct {
	prices   PriceSource
	policies PolicySource

	// MaxPriceAgeUs is how stale a quote may be relative to the batch's
	// versioned timestamp before it counts as a collaborator failure.
	MaxPriceAgeUs int64
}

const defaultMaxPriceAgeUs = 5 * 60 * 1_000_000

func NewVerifier(prices PriceSource, policies PolicySource) *Verifier {
	return &Verifier{
		prices:        prices,
		policies:      policies,
		MaxPriceAgeUs: defaultMaxPriceAgeUs,
	}
}

// Check walks the batch's touched pools and vaults in deterministic order.
// Short-circuits on the first violation, in the fixed order: price sanity,
// vault health, pool utilization.
func (v *Verifier) Check(store *ledger.Store, nowUs int64) error {
	touchedPools := store.TouchedPools()

	for _, id := range touchedPools {
		if err := v.checkPrice(id, nowUs); err != nil {
			return err
		}
	}

	for _, key := range store.TouchedVaults() {
		vault, ok := store.Vault(key)
		if !ok {
			continue // vault was closed this batch
		}
		pool, err := store.Pool(key.Pool)
		if err != nil {
			return err
		}
		policy, err := v.policies.PolicyFor(key.Pool)
		if err != nil {
			return fmt.Errorf("policy for pool %d: %w", key.Pool, err)
		}
		if err := v.checkHealth(vault, pool, policy); err != nil {
			return err
		}
	}

	for _, id := range touchedPools {
		pool, err := store.Pool(id)
		if err != nil {
			return err
		}
		policy, err := v.policies.PolicyFor(id)
		if err != nil {
			return fmt.Errorf("policy for pool %d: %w", id, err)
		}
		if err := v.checkUtilization(pool, policy); err != nil {
			return err
		}
	}

	return nil
}

func (v *Verifier) checkPrice(id ledger.PoolID, nowUs int64) error {
	quote, err := v.prices.SpotPrice(id)
	if err != nil {
		return fmt.Errorf("price for pool %d: %w", id, err)
	}
	if quote.Price <= 0 {
		return fmt.Errorf("%w: pool %d", ErrZeroPrice, id)
	}
	if v.MaxPriceAgeUs > 0 && nowUs-quote.TimestampUs > v.MaxPriceAgeUs {
		return fmt.Errorf("%w: pool %d quote is %dus old", ErrStalePrice, id, nowUs-quote.TimestampUs)
	}
	return nil
}

// checkHealth enforces debtValue/collateralValue < MaintCF whenever debt
// is non-zero.
func (v *Verifier) checkHealth(vault *ledger.Vault, pool *ledger.Pool, policy Policy) error {
	debt := vault.DebtValue(pool)
	if debt == 0 {
		return nil
	}
	collateral := vault.CollateralValue(pool)
	if collateral <= 0 {
		return fmt.Errorf("%w: vault %s has debt %d with collateral %d", ErrHealthViolation, vault.Key, debt, collateral)
	}
	health := fpmath.Ratio(debt, collateral)
	if health >= policy.MaintCF {
		return fmt.Errorf("%w: vault %s health %d ppm >= %d ppm", ErrHealthViolation, vault.Key, health, policy.MaintCF)
	}
	return nil
}

func (v *Verifier) checkUtilization(pool *ledger.Pool, policy Policy) error {
	util := pool.Utilization()
	if util > policy.UtilizationCap {
		return fmt.Errorf("%w: pool %d utilization %d ppm > %d ppm", ErrUtilizationExceeded, pool.ID, util, policy.UtilizationCap)
	}
	return nil
}

// HealthRatio is the verifier's health computation, exported for handlers
// that need eligibility checks (liquidation) against the same math.
func HealthRatio(vault *ledger.Vault, pool *ledger.Pool) int64 {
	debt := vault.DebtValue(pool)
	if debt == 0 {
		return 0
	}
	collateral := vault.CollateralValue(pool)
	if collateral <= 0 {
		return fpmath.Ppm * 1000 // saturated: debt with no collateral
	}
	return fpmath.Ratio(debt, collateral)
}
