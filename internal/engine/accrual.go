package engine

import (
	"fmt"
	"sort"

	"BatchLedger/internal/action"
	"BatchLedger/internal/ledger"
	fpmath "BatchLedger/internal/math"
)

// AccrualResult records one pool's index advance for the event stream.
type AccrualResult struct {
	Pool           ledger.PoolID
	OldIndex       int64
	NewIndex       int64
	ElapsedSeconds int64
}

// referencedPools collects every pool any action touches, deduplicated,
// ascending.
func referencedPools(actions []action.Action) []ledger.PoolID {
	seen := make(map[ledger.PoolID]struct{})
	for _, a := range actions {
		seen[poolOf(a)] = struct{}{}
	}
	out := make([]ledger.PoolID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func poolOf(a action.Action) ledger.PoolID {
	switch act := a.(type) {
	case *action.Deposit:
		return act.Pool
	case *action.Withdraw:
		return act.Pool
	case *action.Borrow:
		return act.Pool
	case *action.Repay:
		return act.Pool
	case *action.RepaySingle:
		return act.Pool
	case *action.OpenPosition:
		return act.Pool
	case *action.ClosePosition:
		return act.Pool
	case *action.PlaceLimitOrder:
		return act.Pool
	case *action.CancelLimitOrder:
		return act.Pool
	case *action.Swap:
		return act.Pool
	case *action.LiquidatePartial:
		return act.Pool
	case *action.LiquidateFull:
		return act.Pool
	case *action.ClaimFees:
		return act.Pool
	case *action.CloseVault:
		return act.Pool
	case *action.Poke:
		return act.Pool
	default:
		panic(fmt.Sprintf("action %T has no pool", a))
	}
}

// accrue advances the debt index of every referenced pool, at most once per
// batch per pool. The index is monotonically non-decreasing; elapsed time
// comes from the batch's versioned timestamp, never the wall clock.
func accrue(store *ledger.Store, rates RateSource, pools []ledger.PoolID, nowUs int64) ([]AccrualResult, error) {
	results := make([]AccrualResult, 0, len(pools))
	for _, id := range pools {
		pool, err := store.Pool(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownPool, id)
		}

		if pool.LastAccrualUs == 0 || nowUs <= pool.LastAccrualUs {
			// First touch or non-advancing timestamp: stamp only.
			pool.LastAccrualUs = nowUs
			continue
		}

		rate, err := rates.RatePerSecond(id)
		if err != nil {
			return nil, fmt.Errorf("rate for pool %d: %w", id, err)
		}

		elapsed := (nowUs - pool.LastAccrualUs) / 1_000_000
		old := pool.DebtIndex
		pool.DebtIndex = fpmath.GrowIndex(old, rate, elapsed)
		pool.LastAccrualUs = nowUs
		store.TouchPool(id)

		if pool.DebtIndex != old {
			results = append(results, AccrualResult{
				Pool:           id,
				OldIndex:       old,
				NewIndex:       pool.DebtIndex,
				ElapsedSeconds: elapsed,
			})
		}
	}
	return results, nil
}
