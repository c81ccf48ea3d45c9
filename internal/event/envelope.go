package event

import (
	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeActionExecuted
	EventTypeBatchExecuted
	EventTypeBatchAborted
	EventTypeAccrualApplied
	EventTypeBadDebtRecorded
	EventTypeVaultLiquidated
	EventTypePositionOpened
	EventTypePositionClosed
)

func (et EventType) String() string {
	switch et {
	case EventTypeActionExecuted:
		return "ActionExecuted"
	case EventTypeBatchExecuted:
		return "BatchExecuted"
	case EventTypeBatchAborted:
		return "BatchAborted"
	case EventTypeAccrualApplied:
		return "AccrualApplied"
	case EventTypeBadDebtRecorded:
		return "BadDebtRecorded"
	case EventTypeVaultLiquidated:
		return "VaultLiquidated"
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypePositionClosed:
		return "PositionClosed"
	default:
		return "Unknown"
	}
}

// Envelope wraps every event emitted to the log and the stream
type Envelope struct {
	// Global monotonic sequence assigned by the orchestrator
	Sequence int64

	// Batch this event belongs to
	BatchID uuid.UUID

	// Event type discriminator
	EventType EventType

	// Pool context (nil for batch-level events)
	PoolID *uint32

	// Versioned input timestamp in microseconds (NOT wall-clock)
	TimestampUs int64

	// JSON-encoded event-specific data
	Payload []byte
}

// Event is the interface all event payloads implement
type Event interface {
	// Type returns the discriminator
	Type() EventType

	// Pool returns the pool context (nil for batch-level events)
	Pool() *uint32
}
