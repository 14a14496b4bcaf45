package query

import (
	"time"

	"github.com/google/uuid"
)

// BalanceResponse is a user's share balances in one pool token. Amounts are
// decimal strings; they come straight out of NUMERIC projection columns.
type BalanceResponse struct {
	PoolID uint64    `json:"pool_id"`
	Token  string    `json:"token"`
	UserID uuid.UUID `json:"user_id"`

	// Active shares earn yield; pending and fee are claimable buckets from
	// settled withdrawals.
	Active  string `json:"active"`
	Pending string `json:"pending"`
	Fee     string `json:"fee"`

	// Last applied event sequence: freshness marker for the read.
	AsOfSequence int64 `json:"as_of_sequence"`
}

// QueueStatusResponse describes the settlement cursor.
type QueueStatusResponse struct {
	UpTo         uint64 `json:"up_to"`
	PendingCount int64  `json:"pending_count"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// QueueEntryResponse is one request in the settlement queue.
type QueueEntryResponse struct {
	EntryID    uint64    `json:"entry_id"`
	PoolID     uint64    `json:"pool_id"`
	Sender     uuid.UUID `json:"sender"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	NegativeRows    int64   `json:"negative_rows,omitempty"`
}
