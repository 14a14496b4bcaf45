package projection

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one settlement or claim in a user's recent activity.
type HistoryEntry struct {
	Entry     uint64    `json:"entry,omitempty"`
	Pool      uint64    `json:"pool"`
	User      uuid.UUID `json:"user"`
	Kind      string    `json:"kind"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// SettlementHistory is an in-memory ring of recent activity for the query
// API. Unlike the Postgres projections it is not rebuilt on restart; it only
// covers what happened since the process came up.
type SettlementHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	cap     int
}

func NewSettlementHistory(capacity int) *SettlementHistory {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &SettlementHistory{
		entries: make([]HistoryEntry, 0, capacity),
		cap:     capacity,
	}
}

func (h *SettlementHistory) Add(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	if len(h.entries) > h.cap {
		h.entries = h.entries[len(h.entries)-h.cap:]
	}
}

// QueryByUser returns the user's most recent entries, newest first.
func (h *SettlementHistory) QueryByUser(user uuid.UUID, limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]HistoryEntry, 0)
	for i := len(h.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if h.entries[i].User == user {
			result = append(result, h.entries[i])
		}
	}
	return result
}
