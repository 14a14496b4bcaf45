package query

import (
	"context"
	"database/sql"
	"fmt"

	"vaultledger/internal/projection"

	"github.com/google/uuid"
)

// Service provides read-only access to the projection tables. Every response
// carries as_of_sequence so callers can reason about staleness; the app lives
// behind an asynchronous settlement queue and reads are never guaranteed to
// include the entry a caller just enqueued.
type Service struct {
	db      *sql.DB
	history *projection.SettlementHistory
}

func NewService(db *sql.DB, history *projection.SettlementHistory) *Service {
	return &Service{db: db, history: history}
}

// GetBalance returns a user's balances for one pool token. Missing rows are
// zero balances, not errors.
func (s *Service) GetBalance(ctx context.Context, poolID uint64, token string, userID uuid.UUID) (*BalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &BalanceResponse{
		PoolID: poolID, Token: token, UserID: userID,
		Active: "0", Pending: "0", Fee: "0",
		AsOfSequence: asOfSeq,
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT active::text, pending::text, fee::text
		FROM projections.user_balances
		WHERE pool_id = $1 AND token = $2 AND user_id = $3
	`, poolID, token, userID).Scan(&resp.Active, &resp.Pending, &resp.Fee)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetUserBalances returns every nonzero balance row for a user across pools.
func (s *Service) GetUserBalances(ctx context.Context, userID uuid.UUID) ([]BalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT pool_id, token, active::text, pending::text, fee::text
		FROM projections.user_balances
		WHERE user_id = $1 AND (active != 0 OR pending != 0 OR fee != 0)
		ORDER BY pool_id, token
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []BalanceResponse
	for rows.Next() {
		b := BalanceResponse{UserID: userID, AsOfSequence: asOfSeq}
		if err := rows.Scan(&b.PoolID, &b.Token, &b.Active, &b.Pending, &b.Fee); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetQueueStatus returns the projected cursor and the count of entries still
// waiting behind it.
func (s *Service) GetQueueStatus(ctx context.Context) (*QueueStatusResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &QueueStatusResponse{AsOfSequence: asOfSeq}

	err = s.db.QueryRowContext(ctx, `
		SELECT up_to FROM projections.queue_status WHERE worker_id = 'main'
	`).Scan(&resp.UpTo)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vault_log.queue_entries WHERE state = 'pending'
	`).Scan(&resp.PendingCount)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetQueueEntry returns one queue entry by ID, nil when unknown.
func (s *Service) GetQueueEntry(ctx context.Context, entryID uint64) (*QueueEntryResponse, error) {
	var e QueueEntryResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_id, pool_id, sender, kind, state, enqueued_at
		FROM vault_log.queue_entries
		WHERE entry_id = $1
	`, entryID).Scan(&e.EntryID, &e.PoolID, &e.Sender, &e.Kind, &e.State, &e.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListPendingEntries returns up to limit pending entries in queue order.
func (s *Service) ListPendingEntries(ctx context.Context, limit int) ([]QueueEntryResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, pool_id, sender, kind, state, enqueued_at
		FROM vault_log.queue_entries
		WHERE state = 'pending'
		ORDER BY entry_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntryResponse
	for rows.Next() {
		var e QueueEntryResponse
		if err := rows.Scan(&e.EntryID, &e.PoolID, &e.Sender, &e.Kind, &e.State, &e.EnqueuedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetActivity returns a user's recent settlements and claims from the
// in-memory history, newest first.
func (s *Service) GetActivity(userID uuid.UUID, limit int) []projection.HistoryEntry {
	if s.history == nil {
		return nil
	}
	return s.history.QueryByUser(userID, limit)
}

// VerifyIntegrity checks hash chain continuity and balance projections.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM vault_log.events e1
		LEFT JOIN vault_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 1 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Share balances can never project below zero.
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projections.user_balances
		WHERE active < 0 OR pending < 0 OR fee < 0
	`).Scan(&report.NegativeRows)
	if err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.NegativeRows == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
