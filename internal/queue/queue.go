// Package queue implements the strict-FIFO settlement request queue. Every
// deposit and withdrawal is appended as an entry; the external operator
// settles entries one at a time, in order, by advancing the cursor. An entry
// leaves the pending window exactly once, either Processed or Skipped.
package queue

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStaleEntry is returned when an advance names an entry other than
	// the one immediately after the cursor.
	ErrStaleEntry = errors.New("advance does not target the next pending entry")

	// ErrEmptyQueue is returned when an advance arrives with nothing pending.
	ErrEmptyQueue = errors.New("no pending entries")
)

type EntryKind uint8

const (
	KindDepositSpot EntryKind = iota + 1
	KindDepositPerp
	KindWithdrawSpot
	KindWithdrawPerp
)

func (k EntryKind) String() string {
	switch k {
	case KindDepositSpot:
		return "deposit_spot"
	case KindDepositPerp:
		return "deposit_perp"
	case KindWithdrawSpot:
		return "withdraw_spot"
	case KindWithdrawPerp:
		return "withdraw_perp"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k EntryKind) IsDeposit() bool {
	return k == KindDepositSpot || k == KindDepositPerp
}

// ParseEntryKind maps the wire representation back to an EntryKind.
func ParseEntryKind(s string) (EntryKind, error) {
	switch s {
	case "deposit_spot":
		return KindDepositSpot, nil
	case "deposit_perp":
		return KindDepositPerp, nil
	case "withdraw_spot":
		return KindWithdrawSpot, nil
	case "withdraw_perp":
		return KindWithdrawPerp, nil
	default:
		return 0, fmt.Errorf("unknown entry kind %q", s)
	}
}

type EntryState uint8

const (
	StatePending EntryState = iota
	StateProcessed
	StateSkipped
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProcessed:
		return "processed"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Entry is one settlement request. IDs are 1-based and assigned on append;
// the ID doubles as the queue position.
type Entry struct {
	ID         uint64
	PoolID     uint64
	Sender     uuid.UUID
	Kind       EntryKind
	Payload    []byte
	State      EntryState
	EnqueuedAt time.Time

	// ResponseDigest is the hash of the operator response that settled the
	// entry. Zero while pending, and zero after a rebuild from the event
	// log, which does not retain raw responses.
	ResponseDigest [32]byte
}

// DigestResponse hashes an advance response for redelivery matching.
func DigestResponse(response []byte) [32]byte {
	return sha256.Sum256(response)
}

// Queue holds every entry ever appended plus the settlement cursor. Entries
// are never removed; processed history stays addressable for replay and
// audit. Not safe for concurrent use; the owning engine serializes access.
type Queue struct {
	entries []Entry
	upTo    uint64 // entries with ID <= upTo are settled
}

func New() *Queue {
	return &Queue{}
}

// Append adds a pending entry and returns its assigned ID.
func (q *Queue) Append(poolID uint64, sender uuid.UUID, kind EntryKind, payload []byte, at time.Time) uint64 {
	id := uint64(len(q.entries)) + 1
	q.entries = append(q.entries, Entry{
		ID:         id,
		PoolID:     poolID,
		Sender:     sender,
		Kind:       kind,
		Payload:    payload,
		State:      StatePending,
		EnqueuedAt: at,
	})
	return id
}

// Head returns the next pending entry without consuming it.
func (q *Queue) Head() (*Entry, error) {
	if q.upTo >= uint64(len(q.entries)) {
		return nil, ErrEmptyQueue
	}
	return &q.entries[q.upTo], nil
}

// Advance marks the entry at the cursor with the given terminal state and
// moves the cursor past it. entryID must name exactly that entry.
func (q *Queue) Advance(entryID uint64, state EntryState) (*Entry, error) {
	head, err := q.Head()
	if err != nil {
		return nil, err
	}
	if entryID != head.ID {
		return nil, fmt.Errorf("%w: got %d, next is %d", ErrStaleEntry, entryID, head.ID)
	}
	head.State = state
	q.upTo = head.ID
	return head, nil
}

// Entry returns the entry with the given ID, settled or not.
func (q *Queue) Entry(id uint64) (*Entry, bool) {
	if id == 0 || id > uint64(len(q.entries)) {
		return nil, false
	}
	return &q.entries[id-1], true
}

// UpTo is the ID of the last settled entry; 0 before any settlement.
func (q *Queue) UpTo() uint64 { return q.upTo }

// Len is the total number of entries ever appended.
func (q *Queue) Len() int { return len(q.entries) }

// PendingLen is the number of entries awaiting settlement.
func (q *Queue) PendingLen() int { return len(q.entries) - int(q.upTo) }

// Restore rebuilds a queue from snapshotted entries and cursor.
func Restore(entries []Entry, upTo uint64) *Queue {
	return &Queue{entries: entries, upTo: upTo}
}

// Entries returns the backing slice for snapshotting. Callers must not
// mutate it.
func (q *Queue) Entries() []Entry { return q.entries }
