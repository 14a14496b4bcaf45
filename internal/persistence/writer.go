package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter writes events and queue rows to Postgres using multi-row
// INSERT batches. Switch to pgx CopyFrom if insert throughput becomes the
// bottleneck.
type EventLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// EventRow is a row in vault_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	PoolID         *int64
	EntryID        int64
	Payload        []byte
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// QueueRow is a row in vault_log.queue_entries. Rows are upserted: an entry
// is inserted as pending when queued and its state is overwritten when the
// operator settles or skips it.
type QueueRow struct {
	EntryID    int64
	PoolID     int64
	Sender     string
	Kind       string
	State      string
	Payload    []byte
	EnqueuedAt time.Time
}

func NewEventLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *EventLogWriter {
	return &EventLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteEventBatch writes a batch of events to vault_log.events.
// Conflicting sequences are ignored so redelivered batches are harmless.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, events []EventRow, tx execer) error {
	if len(events) == 0 {
		return nil
	}
	if tx == nil {
		tx = w.db
	}

	query := `INSERT INTO vault_log.events
		(sequence, event_type, idempotency_key, pool_id, entry_id, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.PoolID, e.EntryID,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteQueueBatch upserts a batch of queue entry rows into
// vault_log.queue_entries.
func (w *EventLogWriter) WriteQueueBatch(ctx context.Context, rows []QueueRow, tx execer) error {
	if len(rows) == 0 {
		return nil
	}
	if tx == nil {
		tx = w.db
	}

	query := `INSERT INTO vault_log.queue_entries
		(entry_id, pool_id, sender, kind, state, payload, enqueued_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*7)

	for i, r := range rows {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			r.EntryID, r.PoolID, r.Sender, r.Kind, r.State, r.Payload, r.EnqueuedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (entry_id) DO UPDATE SET state = EXCLUDED.state"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
