// Package oracle provides the in-process price, rate, and policy sources.
// Quotes are pushed in by an operator surface or a feed subscriber; the
// engine only ever reads.
package oracle

import (
	"fmt"
	"sync"

	"BatchLedger/internal/engine"
	"BatchLedger/internal/ledger"
	fpmath "BatchLedger/internal/math"
)

// Static serves the last pushed quote, rate, and policy per pool. Safe for
// concurrent use; reads during a batch see a consistent per-call value.
type Static struct {
	mu       sync.RWMutex
	prices   map[ledger.PoolID]engine.PriceQuote
	rates    map[ledger.PoolID]int64
	policies map[ledger.PoolID]engine.Policy

	defaultPolicy engine.Policy
}

// DefaultPolicy is the risk parameter set applied to pools without an
// explicit override.
func DefaultPolicy() engine.Policy {
	return engine.Policy{
		InitCF:           800_000,         // open debt up to 80% of collateral
		MaintCF:          980_000,         // liquidatable at 98%
		UtilizationCap:   950_000,         // pool-wide debt cap at 95%
		LiquidationBonus: 50_000,          // 5% seizure premium
		LiquidatorShare:  fpmath.Ppm,      // entire bonus to the liquidator
		SwapFee:          3_000,           // 0.3%
	}
}

func NewStatic() *Static {
	return &Static{
		prices:        make(map[ledger.PoolID]engine.PriceQuote),
		rates:         make(map[ledger.PoolID]int64),
		policies:      make(map[ledger.PoolID]engine.Policy),
		defaultPolicy: DefaultPolicy(),
	}
}

// SetPrice pushes a quote for a pool.
func (s *Static) SetPrice(pool ledger.PoolID, price, timestampUs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pool] = engine.PriceQuote{Price: price, TimestampUs: timestampUs}
}

// SetRate pushes a per-second borrow rate for a pool, RateConfig scale.
func (s *Static) SetRate(pool ledger.PoolID, ratePerSecond int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pool] = ratePerSecond
}

// SetPolicy overrides the risk parameters for one pool.
func (s *Static) SetPolicy(pool ledger.PoolID, p engine.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[pool] = p
}

// SetDefaultPolicy replaces the fallback parameter set.
func (s *Static) SetDefaultPolicy(p engine.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultPolicy = p
}

func (s *Static) SpotPrice(pool ledger.PoolID) (engine.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.prices[pool]
	if !ok {
		return engine.PriceQuote{}, fmt.Errorf("no quote for pool %d", pool)
	}
	return q, nil
}

func (s *Static) RatePerSecond(pool ledger.PoolID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rates[pool], nil
}

func (s *Static) PolicyFor(pool ledger.PoolID) (engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[pool]; ok {
		return p, nil
	}
	return s.defaultPolicy, nil
}
