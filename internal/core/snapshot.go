package core

import (
	"context"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/ledger"
	"vaultledger/internal/queue"
)

// SnapshotState is the serializable in-memory state of the engine. Relay
// channels are not serializable; they are re-dialed on restore.
type SnapshotState struct {
	Sequence  int64    `json:"sequence"`
	StateHash [32]byte `json:"state_hash"`
	Revision  uint64   `json:"revision"`

	PauseDeposits    bool `json:"pause_deposits"`
	PauseWithdrawals bool `json:"pause_withdrawals"`
	PauseClaims      bool `json:"pause_claims"`

	Pools       []PoolRecord      `json:"pools"`
	Instruments map[string]uint32 `json:"instruments"`

	QueueEntries []queue.Entry `json:"queue_entries"`
	QueueUpTo    uint64        `json:"queue_up_to"`

	IdempotencyKeys []string `json:"idempotency_keys"`
}

type PoolRecord struct {
	ID     uint64        `json:"id"`
	Kind   string        `json:"kind"`
	Tokens []TokenRecord `json:"tokens"`
}

type TokenRecord struct {
	Symbol     string `json:"symbol"`
	Decimals   uint8  `json:"decimals"`
	Instrument uint32 `json:"instrument"`

	Active         sdkmath.Int `json:"active"`
	Hardcap        sdkmath.Int `json:"hardcap"`
	IsActive       bool        `json:"is_active"`
	TotalDeposited sdkmath.Int `json:"total_deposited"`
	TotalClaimed   sdkmath.Int `json:"total_claimed"`

	UserActive  map[uuid.UUID]sdkmath.Int `json:"user_active"`
	UserPending map[uuid.UUID]sdkmath.Int `json:"user_pending"`
	UserFee     map[uuid.UUID]sdkmath.Int `json:"user_fee"`
}

// CreateSnapshotState captures the current engine state.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	e.mu.Lock()
	defer e.mu.Unlock()

	pools := e.registry.Pools()
	poolIDs := make([]uint64, 0, len(pools))
	for id := range pools {
		poolIDs = append(poolIDs, id)
	}
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })

	records := make([]PoolRecord, 0, len(poolIDs))
	instruments := make(map[string]uint32)

	for _, id := range poolIDs {
		pool := pools[id]
		tokens := make([]string, 0, len(pool.Tokens))
		for token := range pool.Tokens {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)

		tokenRecords := make([]TokenRecord, 0, len(tokens))
		for _, token := range tokens {
			tl := pool.Tokens[token]
			tokenRecords = append(tokenRecords, TokenRecord{
				Symbol:         tl.Symbol,
				Decimals:       tl.Decimals,
				Instrument:     tl.Instrument,
				Active:         tl.Active,
				Hardcap:        tl.Hardcap,
				IsActive:       tl.IsActive,
				TotalDeposited: tl.TotalDeposited,
				TotalClaimed:   tl.TotalClaimed,
				UserActive:     copyBalances(tl.UserActive),
				UserPending:    copyBalances(tl.UserPending),
				UserFee:        copyBalances(tl.UserFee),
			})
			if tl.Instrument != 0 {
				instruments[token] = tl.Instrument
			}
		}

		records = append(records, PoolRecord{ID: id, Kind: pool.Kind.String(), Tokens: tokenRecords})
	}

	return &SnapshotState{
		Sequence:         e.sequence,
		StateHash:        e.hasher.GetPrevHash(),
		Revision:         e.revision,
		PauseDeposits:    e.pauseDeposits,
		PauseWithdrawals: e.pauseWithdrawals,
		PauseClaims:      e.pauseClaims,
		Pools:            records,
		Instruments:      instruments,
		QueueEntries:     append([]queue.Entry(nil), e.queue.Entries()...),
		QueueUpTo:        e.queue.UpTo(),
		IdempotencyKeys:  e.idempotency.lru.GetAllKeys(),
	}
}

// RestoreFromSnapshot rebuilds the engine from a snapshot. Relay channels
// are re-opened through the dialer; the link handshake is not repeated,
// the venue remembers linked pools.
func (e *Engine) RestoreFromSnapshot(ctx context.Context, snap *SnapshotState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sequence = snap.Sequence
	e.hasher.SetPrevHash(snap.StateHash)
	e.revision = snap.Revision
	e.pauseDeposits = snap.PauseDeposits
	e.pauseWithdrawals = snap.PauseWithdrawals
	e.pauseClaims = snap.PauseClaims

	e.registry = ledger.NewRegistry()
	for token, instrument := range snap.Instruments {
		e.registry.BindInstrument(token, instrument)
	}

	for _, record := range snap.Pools {
		kind, err := ledger.ParsePoolKind(record.Kind)
		if err != nil {
			return fmt.Errorf("restore pool %d: %w", record.ID, err)
		}
		relay, err := e.dialer.Open(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("reopen relay for pool %d: %w", record.ID, err)
		}
		pool, err := e.registry.AddPool(record.ID, kind, relay)
		if err != nil {
			return err
		}

		for _, tr := range record.Tokens {
			tl := ledger.NewTokenLedger(tr.Symbol, tr.Decimals, tr.Instrument, tr.Hardcap)
			tl.Active = tr.Active
			tl.IsActive = tr.IsActive
			tl.TotalDeposited = tr.TotalDeposited
			tl.TotalClaimed = tr.TotalClaimed
			tl.UserActive = copyBalances(tr.UserActive)
			tl.UserPending = copyBalances(tr.UserPending)
			tl.UserFee = copyBalances(tr.UserFee)
			pool.Tokens[tr.Symbol] = tl
		}
	}

	e.queue = queue.Restore(append([]queue.Entry(nil), snap.QueueEntries...), snap.QueueUpTo)
	e.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	if e.metrics != nil {
		e.metrics.CoreSequence.Set(float64(e.sequence))
		e.metrics.QueueCursor.Set(float64(e.queue.UpTo()))
		e.metrics.QueueDepth.Set(float64(e.queue.PendingLen()))
	}
	return nil
}

// WarmLRU loads recent command dedup keys into the LRU cache.
func (e *Engine) WarmLRU(keys []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idempotency.lru.WarmFromKeys(keys)
}

func copyBalances(in map[uuid.UUID]sdkmath.Int) map[uuid.UUID]sdkmath.Int {
	out := make(map[uuid.UUID]sdkmath.Int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
