package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePoolAdded
	EventTypeTokensAdded
	EventTypeHardcapUpdated
	EventTypeInstrumentRebound
	EventTypeRequestQueued
	EventTypeEntrySkipped
	EventTypeDepositSettled
	EventTypeWithdrawSettled
	EventTypeClaimed
	EventTypePauseChanged
	EventTypeClaimReverted
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from the originating command
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pool context (nil for pool-independent events)
	PoolID *uint64

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Queue entry that produced this event, 0 for admin events
	EntryID uint64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// PoolID returns the pool context (nil for global events)
	PoolID() *uint64

	// EntryID returns the queue entry behind this event, 0 if none
	EntryID() uint64
}

func (et EventType) String() string {
	switch et {
	case EventTypePoolAdded:
		return "PoolAdded"
	case EventTypeTokensAdded:
		return "TokensAdded"
	case EventTypeHardcapUpdated:
		return "HardcapUpdated"
	case EventTypeInstrumentRebound:
		return "InstrumentRebound"
	case EventTypeRequestQueued:
		return "RequestQueued"
	case EventTypeEntrySkipped:
		return "EntrySkipped"
	case EventTypeDepositSettled:
		return "DepositSettled"
	case EventTypeWithdrawSettled:
		return "WithdrawSettled"
	case EventTypeClaimed:
		return "Claimed"
	case EventTypePauseChanged:
		return "PauseChanged"
	case EventTypeClaimReverted:
		return "ClaimReverted"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of String, for rows read back from the event
// log. Unrecognized names map to EventTypeUnknown.
func ParseEventType(s string) EventType {
	switch s {
	case "PoolAdded":
		return EventTypePoolAdded
	case "TokensAdded":
		return EventTypeTokensAdded
	case "HardcapUpdated":
		return EventTypeHardcapUpdated
	case "InstrumentRebound":
		return EventTypeInstrumentRebound
	case "RequestQueued":
		return EventTypeRequestQueued
	case "EntrySkipped":
		return EventTypeEntrySkipped
	case "DepositSettled":
		return EventTypeDepositSettled
	case "WithdrawSettled":
		return EventTypeWithdrawSettled
	case "Claimed":
		return EventTypeClaimed
	case "PauseChanged":
		return EventTypePauseChanged
	case "ClaimReverted":
		return EventTypeClaimReverted
	default:
		return EventTypeUnknown
	}
}
