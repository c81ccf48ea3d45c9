package engine

import (
	"errors"
	"fmt"

	"BatchLedger/internal/action"
	"BatchLedger/internal/amm"
)

// ErrorClass is the failure taxonomy. Every abort carries exactly one class.
type ErrorClass uint8

const (
	// ClassValidation: detected before any mutation (unknown/blacklisted
	// kind, malformed params, expired deadline, reentrancy).
	ClassValidation ErrorClass = iota
	// ClassCapacity: detected inside a handler before it would mutate
	// (initial collateral factor, utilization cap).
	ClassCapacity
	// ClassSolvency: detected by the verifier after a handler's tentative
	// result (maintenance threshold breach).
	ClassSolvency
	// ClassCollaborator: price/liquidity primitive failures, surfaced
	// verbatim and fatal to the batch.
	ClassCollaborator
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassCapacity:
		return "capacity"
	case ClassSolvency:
		return "solvency"
	case ClassCollaborator:
		return "collaborator"
	default:
		return "unknown"
	}
}

// Validation errors
var (
	ErrExpiredDeadline = errors.New("batch deadline expired")
	ErrBatchInFlight   = errors.New("another batch is in flight")
	ErrUnknownPool     = errors.New("unknown pool")
	ErrUnknownPosition = errors.New("unknown position")
	ErrUnauthorized    = errors.New("caller does not own the target")
)

// Capacity errors
var (
	ErrExceedsInitCF        = errors.New("borrow exceeds initial collateral factor")
	ErrUtilizationExceeded  = errors.New("pool utilization cap exceeded")
	ErrInsufficientShares   = errors.New("insufficient free shares")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity for payout")
)

// Handler precondition errors (validation class: rejected before mutation)
var (
	ErrSlippage              = errors.New("output below minimum")
	ErrExceedsDebt           = errors.New("repay exceeds outstanding debt")
	ErrNotEligible           = errors.New("vault not eligible for liquidation")
	ErrInsufficientRepay     = errors.New("liquidation repay amount too small")
	ErrPositionsNotClosed    = errors.New("vault has open positions")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
)

// Solvency errors
var (
	ErrHealthViolation = errors.New("health ratio at or above maintenance threshold")
)

// Collaborator errors
var (
	ErrZeroPrice  = errors.New("price collaborator returned zero price")
	ErrStalePrice = errors.New("price collaborator returned stale price")
)

// BatchError is the single failure a batch reports: the class, the failing
// action (when one exists) and the underlying reason.
type BatchError struct {
	Class       ErrorClass
	ActionIndex int // index in the caller's original order; -1 if none
	ActionKind  action.Kind
	Err         error
}

func (e *BatchError) Error() string {
	if e.ActionIndex < 0 {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: action %d (%s): %v", e.Class, e.ActionIndex, e.ActionKind, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func newBatchError(class ErrorClass, index int, kind action.Kind, err error) *BatchError {
	return &BatchError{Class: class, ActionIndex: index, ActionKind: kind, Err: err}
}

// validationError is a batch-level validation failure with no action index.
func validationError(err error) *BatchError {
	return &BatchError{Class: ClassValidation, ActionIndex: -1, Err: err}
}

// classify maps an error from a handler or collaborator into its class.
func classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrExceedsInitCF),
		errors.Is(err, ErrUtilizationExceeded),
		errors.Is(err, ErrInsufficientShares),
		errors.Is(err, ErrInsufficientLiquidity):
		return ClassCapacity
	case errors.Is(err, ErrHealthViolation):
		return ClassSolvency
	case errors.Is(err, ErrZeroPrice),
		errors.Is(err, ErrStalePrice),
		errors.Is(err, amm.ErrZeroAmount),
		errors.Is(err, amm.ErrEmptyReserves),
		errors.Is(err, amm.ErrInsufficientDepth):
		return ClassCollaborator
	default:
		return ClassValidation
	}
}
