package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RequestQueued carries the full intent payload so the event log alone can
// rebuild the queue on replay.
type RequestQueued struct {
	Entry   uint64          `json:"entry"`
	Pool    uint64          `json:"pool"`
	Sender  uuid.UUID       `json:"sender"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (e *RequestQueued) IdempotencyKey() string {
	return fmt.Sprintf("request-queued:%d", e.Entry)
}

func (e *RequestQueued) EventType() EventType { return EventTypeRequestQueued }
func (e *RequestQueued) PoolID() *uint64      { return &e.Pool }
func (e *RequestQueued) EntryID() uint64      { return e.Entry }

// EntrySkipped records that settlement of an entry failed or was declined
// and the cursor advanced past it without state change.
type EntrySkipped struct {
	Entry   uint64    `json:"entry"`
	Pool    uint64    `json:"pool"`
	Command uuid.UUID `json:"command"`
	Kind    string    `json:"kind"`
	Reason  string    `json:"reason"`
}

func (e *EntrySkipped) IdempotencyKey() string {
	return fmt.Sprintf("advance:%s", e.Command)
}

func (e *EntrySkipped) EventType() EventType { return EventTypeEntrySkipped }
func (e *EntrySkipped) PoolID() *uint64      { return &e.Pool }
func (e *EntrySkipped) EntryID() uint64      { return e.Entry }
