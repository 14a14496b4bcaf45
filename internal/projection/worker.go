package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"vaultledger/internal/core"
	"vaultledger/internal/event"
	"vaultledger/internal/observability"

	"github.com/rs/zerolog"
)

// Worker updates projection tables from emitted events. The projection
// channel is non-blocking with drop on the core side: a projection that
// falls behind is rebuilt from the event log, never waited on.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.Output
	history   *SettlementHistory
	metrics   *observability.Metrics
	log       zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.Output, history *SettlementHistory, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		history:   history,
		metrics:   metrics,
		log:       observability.NewLogger("projection"),
	}
}

// Run drains the projection channel until ctx is cancelled or the channel
// closes. Update failures are logged and skipped; projections are eventually
// consistent.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := w.Apply(ctx, output.Envelope); err != nil {
				w.log.Warn().Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Str("event_type", output.Envelope.EventType.String()).
					Msg("projection update failed")
			}
			if w.metrics != nil {
				w.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
			}
		}
	}
}

// Apply projects one envelope into the read tables. Both the live worker and
// Rebuild come through here so the two paths cannot diverge.
func (w *Worker) Apply(ctx context.Context, env *event.EventEnvelope) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.applyEvent(ctx, tx, env); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.lastSeq = env.Sequence
	return nil
}

func (w *Worker) applyEvent(ctx context.Context, tx *sql.Tx, env *event.EventEnvelope) error {
	switch env.EventType {
	case event.EventTypeDepositSettled:
		var evt event.DepositSettled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		for _, leg := range evt.Legs {
			if err := w.creditShares(ctx, tx, evt.Pool, leg.Token, evt.Receiver.String(), leg.Shares.String(), env.Sequence); err != nil {
				return err
			}
		}
		if err := w.setCursor(ctx, tx, evt.Entry, env.Sequence); err != nil {
			return err
		}
		if w.history != nil {
			w.history.Add(HistoryEntry{
				Entry: evt.Entry, Pool: evt.Pool, User: evt.Receiver,
				Kind: "deposit", Sequence: env.Sequence, Timestamp: env.Timestamp,
			})
		}

	case event.EventTypeWithdrawSettled:
		var evt event.WithdrawSettled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		for _, leg := range evt.Legs {
			if err := w.bookRelease(ctx, tx, evt.Pool, leg, evt.Receiver.String(), env.Sequence); err != nil {
				return err
			}
		}
		if err := w.setCursor(ctx, tx, evt.Entry, env.Sequence); err != nil {
			return err
		}
		if w.history != nil {
			w.history.Add(HistoryEntry{
				Entry: evt.Entry, Pool: evt.Pool, User: evt.Receiver,
				Kind: "withdraw", Sequence: env.Sequence, Timestamp: env.Timestamp,
			})
		}

	case event.EventTypeClaimed:
		var evt event.Claimed
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.user_balances (pool_id, token, user_id, active, pending, fee, last_sequence)
			VALUES ($1, $2, $3, 0, -$4::numeric, -$5::numeric, $6)
			ON CONFLICT (pool_id, token, user_id) DO UPDATE SET
				pending = projections.user_balances.pending - $4::numeric,
				fee = projections.user_balances.fee - $5::numeric,
				last_sequence = $6
		`, evt.Pool, evt.Token, evt.User.String(), evt.UserPart.String(), evt.FeePart.String(), env.Sequence); err != nil {
			return fmt.Errorf("claim projection: %w", err)
		}
		if w.history != nil {
			w.history.Add(HistoryEntry{
				Pool: evt.Pool, User: evt.User,
				Kind: "claim", Sequence: env.Sequence, Timestamp: env.Timestamp,
			})
		}

	case event.EventTypeClaimReverted:
		var evt event.ClaimReverted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.user_balances (pool_id, token, user_id, active, pending, fee, last_sequence)
			VALUES ($1, $2, $3, 0, $4::numeric, $5::numeric, $6)
			ON CONFLICT (pool_id, token, user_id) DO UPDATE SET
				pending = projections.user_balances.pending + $4::numeric,
				fee = projections.user_balances.fee + $5::numeric,
				last_sequence = $6
		`, evt.Pool, evt.Token, evt.User.String(), evt.UserPart.String(), evt.FeePart.String(), env.Sequence); err != nil {
			return fmt.Errorf("claim revert projection: %w", err)
		}

	case event.EventTypeEntrySkipped:
		var evt event.EntrySkipped
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if err := w.setCursor(ctx, tx, evt.Entry, env.Sequence); err != nil {
			return err
		}

	default:
		// Admin and queue events carry no balance changes.
	}

	return nil
}

// creditShares adds settled shares to a user's active balance.
func (w *Worker) creditShares(ctx context.Context, tx *sql.Tx, pool uint64, token, user, shares string, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.user_balances (pool_id, token, user_id, active, pending, fee, last_sequence)
		VALUES ($1, $2, $3, $4::numeric, 0, 0, $5)
		ON CONFLICT (pool_id, token, user_id) DO UPDATE SET
			active = projections.user_balances.active + $4::numeric,
			last_sequence = $5
	`, pool, token, user, shares, seq)
	if err != nil {
		return fmt.Errorf("credit projection: %w", err)
	}
	return nil
}

// bookRelease moves shares out of active and books the released amount into
// the claimable buckets, fee carved out.
func (w *Worker) bookRelease(ctx context.Context, tx *sql.Tx, pool uint64, leg event.TokenRelease, user string, seq int64) error {
	claimable := leg.Released.Sub(leg.Fee)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.user_balances (pool_id, token, user_id, active, pending, fee, last_sequence)
		VALUES ($1, $2, $3, -$4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (pool_id, token, user_id) DO UPDATE SET
			active = projections.user_balances.active - $4::numeric,
			pending = projections.user_balances.pending + $5::numeric,
			fee = projections.user_balances.fee + $6::numeric,
			last_sequence = $7
	`, pool, leg.Token, user, leg.Shares.String(), claimable.String(), leg.Fee.String(), seq)
	if err != nil {
		return fmt.Errorf("release projection: %w", err)
	}
	return nil
}

func (w *Worker) setCursor(ctx context.Context, tx *sql.Tx, entry uint64, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.queue_status (worker_id, up_to, last_sequence, updated_at)
		VALUES ('main', $1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET up_to = $1, last_sequence = $2, updated_at = NOW()
	`, entry, seq)
	if err != nil {
		return fmt.Errorf("cursor projection: %w", err)
	}
	return nil
}

// Rebuild truncates the projection tables and replays the given envelopes
// through the same apply path as the live worker.
func (w *Worker) Rebuild(ctx context.Context, envelopes []event.EventEnvelope) error {
	truncateStatements := []string{
		`TRUNCATE projections.user_balances`,
		`DELETE FROM projections.queue_status WHERE worker_id = 'main'`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range truncateStatements {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	for i := range envelopes {
		if err := w.Apply(ctx, &envelopes[i]); err != nil {
			return fmt.Errorf("rebuild at seq=%d: %w", envelopes[i].Sequence, err)
		}
	}

	w.log.Info().Int("events", len(envelopes)).Msg("projection rebuild complete")
	return nil
}
