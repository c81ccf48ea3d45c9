package action

import "fmt"

// Kind is the action discriminant. The numeric values are wire format and
// append-only: new kinds get new numbers, existing numbers never change
// meaning.
type Kind uint8

const (
	KindUnknown Kind = 0

	// Executable kinds
	KindDeposit          Kind = 1
	KindWithdraw         Kind = 2
	KindBorrow           Kind = 3
	KindRepay            Kind = 4
	KindRepaySingle      Kind = 5
	KindOpenPosition     Kind = 6
	KindClosePosition    Kind = 7
	KindPlaceLimitOrder  Kind = 8
	KindCancelLimitOrder Kind = 9
	KindSwap             Kind = 10
	KindLiquidatePartial Kind = 11
	KindLiquidateFull    Kind = 12
	KindClaimFees        Kind = 13
	KindCloseVault       Kind = 14
	KindPoke             Kind = 15

	// Declared but never batchable; these run through serial admin paths.
	KindAdminLiquidate  Kind = 16
	KindWriteOffBadDebt Kind = 17
	KindFlashBorrow     Kind = 18

	// Discriminants 200-255 are reserved for future kinds. They decode
	// but abort the batch with a distinct validation error.
	ReservedLow  Kind = 200
	ReservedHigh Kind = 255
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	case KindBorrow:
		return "borrow"
	case KindRepay:
		return "repay"
	case KindRepaySingle:
		return "repay_single"
	case KindOpenPosition:
		return "open_position"
	case KindClosePosition:
		return "close_position"
	case KindPlaceLimitOrder:
		return "place_limit_order"
	case KindCancelLimitOrder:
		return "cancel_limit_order"
	case KindSwap:
		return "swap"
	case KindLiquidatePartial:
		return "liquidate_partial"
	case KindLiquidateFull:
		return "liquidate_full"
	case KindClaimFees:
		return "claim_fees"
	case KindCloseVault:
		return "close_vault"
	case KindPoke:
		return "poke"
	case KindAdminLiquidate:
		return "admin_liquidate"
	case KindWriteOffBadDebt:
		return "write_off_bad_debt"
	case KindFlashBorrow:
		return "flash_borrow"
	default:
		if k.Reserved() {
			return fmt.Sprintf("reserved_%d", uint8(k))
		}
		return fmt.Sprintf("unknown_%d", uint8(k))
	}
}

// Reserved reports whether the discriminant sits in the reserved range.
func (k Kind) Reserved() bool {
	return k >= ReservedLow
}

// ExecutableKinds lists every kind with a handler, in discriminant order.
func ExecutableKinds() []Kind {
	return []Kind{
		KindDeposit, KindWithdraw, KindBorrow, KindRepay, KindRepaySingle,
		KindOpenPosition, KindClosePosition, KindPlaceLimitOrder,
		KindCancelLimitOrder, KindSwap, KindLiquidatePartial,
		KindLiquidateFull, KindClaimFees, KindCloseVault, KindPoke,
	}
}

// BlacklistVersion identifies the standing blacklist revision reported to
// callers and recorded with every batch.
const BlacklistVersion = 1

// blacklist holds the kinds that must never appear inside a batch.
var blacklist = map[Kind]struct{}{
	KindAdminLiquidate:  {},
	KindWriteOffBadDebt: {},
	KindFlashBorrow:     {},
}

// Blacklisted reports whether a kind is forbidden inside batches.
func (k Kind) Blacklisted() bool {
	_, ok := blacklist[k]
	return ok
}

// Phase is the scheduling bucket for a kind.
type Phase uint8

const (
	// PhaseRiskReducing actions execute first (phase A).
	PhaseRiskReducing Phase = iota
	// PhaseRiskIncreasing covers everything else, including neutral
	// actions scheduled after risk-reducing ones out of caution (phase B).
	PhaseRiskIncreasing
)

func (p Phase) String() string {
	if p == PhaseRiskReducing {
		return "risk_reducing"
	}
	return "risk_increasing"
}

// phaseTable is the static risk classification per kind.
var phaseTable = map[Kind]Phase{
	KindDeposit:          PhaseRiskReducing,
	KindRepay:            PhaseRiskReducing,
	KindRepaySingle:      PhaseRiskReducing,
	KindClaimFees:        PhaseRiskReducing,
	KindPoke:             PhaseRiskReducing,
	KindLiquidatePartial: PhaseRiskReducing,
	KindLiquidateFull:    PhaseRiskReducing,

	KindWithdraw:         PhaseRiskIncreasing,
	KindBorrow:           PhaseRiskIncreasing,
	KindOpenPosition:     PhaseRiskIncreasing,
	KindClosePosition:    PhaseRiskIncreasing,
	KindPlaceLimitOrder:  PhaseRiskIncreasing,
	KindCancelLimitOrder: PhaseRiskIncreasing,
	KindSwap:             PhaseRiskIncreasing,
	KindCloseVault:       PhaseRiskIncreasing,
}

// PhaseOf returns the scheduling bucket for a kind.
func PhaseOf(k Kind) Phase {
	return phaseTable[k]
}

// CheckKindTables verifies that every executable kind has a phase entry and
// that no blacklisted kind does. Run from tests so a new kind cannot land
// without a phase label and a blacklist decision.
func CheckKindTables() error {
	for _, k := range ExecutableKinds() {
		if _, ok := phaseTable[k]; !ok {
			return fmt.Errorf("kind %s has no phase entry", k)
		}
		if k.Blacklisted() {
			return fmt.Errorf("kind %s is both executable and blacklisted", k)
		}
	}
	for k := range blacklist {
		if _, ok := phaseTable[k]; ok {
			return fmt.Errorf("blacklisted kind %s has a phase entry", k)
		}
	}
	return nil
}
