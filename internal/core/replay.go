package core

import (
	"context"
	"encoding/json"
	"fmt"

	"vaultledger/internal/event"
	"vaultledger/internal/ledger"
	"vaultledger/internal/queue"
)

// Replay applies a persisted event to in-memory state. Command-side checks
// already ran when the event was first emitted, and external side effects
// (transfers, relay submissions) already happened; replay only repeats the
// state transition. Events must arrive in sequence order, and the
// recomputed hash must extend the stored chain exactly.
func (e *Engine) Replay(ctx context.Context, env *event.EventEnvelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if env.Sequence != e.sequence {
		return fmt.Errorf("replay out of order: got sequence %d, expected %d", env.Sequence, e.sequence)
	}
	if prev := e.hasher.GetPrevHash(); prev != env.PrevHash {
		return fmt.Errorf("replay chain break at sequence %d: prev hash %x, chain tip %x",
			env.Sequence, env.PrevHash, prev)
	}

	if err := e.applyReplayed(ctx, env); err != nil {
		return fmt.Errorf("replay sequence %d (%s): %w", env.Sequence, env.EventType, err)
	}

	hash := e.hasher.ComputeHash(e.sequence, e.stateDigest())
	if hash != env.StateHash {
		return fmt.Errorf("state hash mismatch at sequence %d: computed %x, stored %x",
			env.Sequence, hash, env.StateHash)
	}

	e.sequence++
	e.idempotency.lru.WarmFromKeys([]string{env.IdempotencyKey})

	if e.metrics != nil {
		e.metrics.ReplayEventsTotal.Inc()
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}
	return nil
}

func (e *Engine) applyReplayed(ctx context.Context, env *event.EventEnvelope) error {
	switch env.EventType {
	case event.EventTypePoolAdded:
		var evt event.PoolAdded
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		kind, err := ledger.ParsePoolKind(evt.Kind)
		if err != nil {
			return err
		}
		// The link handshake is one-time; the venue remembers linked pools.
		relay, err := e.dialer.Open(ctx, evt.Pool)
		if err != nil {
			return fmt.Errorf("reopen relay for pool %d: %w", evt.Pool, err)
		}
		_, err = e.registry.AddPool(evt.Pool, kind, relay)
		return err

	case event.EventTypeTokensAdded:
		var evt event.TokensAdded
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		return e.registry.AddTokens(evt.Pool, evt.Tokens, evt.Hardcaps, evt.Decimals)

	case event.EventTypeHardcapUpdated:
		var evt event.HardcapUpdated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		if err := e.registry.UpdateHardcaps(evt.Pool, evt.Tokens, evt.Hardcaps); err != nil {
			return err
		}
		e.revision = evt.Revision
		return nil

	case event.EventTypeInstrumentRebound:
		var evt event.InstrumentRebound
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		e.registry.BindInstrument(evt.Token, evt.Instrument)
		e.revision = evt.Revision
		return nil

	case event.EventTypePauseChanged:
		var evt event.PauseChanged
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		e.pauseDeposits = evt.Deposits
		e.pauseWithdrawals = evt.Withdrawals
		e.pauseClaims = evt.Claims
		e.revision = evt.Revision
		return nil

	case event.EventTypeRequestQueued:
		var evt event.RequestQueued
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		kind, err := queue.ParseEntryKind(evt.Kind)
		if err != nil {
			return err
		}
		id := e.queue.Append(evt.Pool, evt.Sender, kind, evt.Payload, env.Timestamp)
		if id != evt.Entry {
			return fmt.Errorf("queue divergence: appended entry %d, event recorded %d", id, evt.Entry)
		}
		return nil

	case event.EventTypeDepositSettled:
		var evt event.DepositSettled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		pool, err := e.registry.Pool(evt.Pool)
		if err != nil {
			return err
		}
		for _, leg := range evt.Legs {
			tl, err := pool.Token(leg.Token)
			if err != nil {
				return err
			}
			if err := tl.Credit(evt.Receiver, leg.Shares); err != nil {
				return err
			}
		}
		_, err = e.queue.Advance(evt.Entry, queue.StateProcessed)
		return err

	case event.EventTypeWithdrawSettled:
		var evt event.WithdrawSettled
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		pool, err := e.registry.Pool(evt.Pool)
		if err != nil {
			return err
		}
		entry, ok := e.queue.Entry(evt.Entry)
		if !ok {
			return fmt.Errorf("withdrawal for unknown queue entry %d", evt.Entry)
		}
		for _, leg := range evt.Legs {
			tl, err := pool.Token(leg.Token)
			if err != nil {
				return err
			}
			if err := tl.SettleWithdrawal(entry.Sender, leg.Shares, leg.Released, leg.Fee); err != nil {
				return err
			}
		}
		_, err = e.queue.Advance(evt.Entry, queue.StateProcessed)
		return err

	case event.EventTypeEntrySkipped:
		var evt event.EntrySkipped
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		_, err := e.queue.Advance(evt.Entry, queue.StateSkipped)
		return err

	case event.EventTypeClaimed:
		var evt event.Claimed
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		pool, err := e.registry.Pool(evt.Pool)
		if err != nil {
			return err
		}
		tl, err := pool.Token(evt.Token)
		if err != nil {
			return err
		}
		// TakeClaim drains fee first; feeding it exactly the claimed total
		// reproduces the original split.
		feePart, userPart := tl.TakeClaim(evt.User, evt.FeePart.Add(evt.UserPart))
		if !feePart.Equal(evt.FeePart) || !userPart.Equal(evt.UserPart) {
			return fmt.Errorf("claim divergence: replayed %s/%s, event recorded %s/%s",
				feePart, userPart, evt.FeePart, evt.UserPart)
		}
		e.revision = evt.Revision
		return nil

	case event.EventTypeClaimReverted:
		var evt event.ClaimReverted
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return err
		}
		pool, err := e.registry.Pool(evt.Pool)
		if err != nil {
			return err
		}
		tl, err := pool.Token(evt.Token)
		if err != nil {
			return err
		}
		tl.RevertClaim(evt.User, evt.FeePart, evt.UserPart)
		e.revision = evt.Revision
		return nil

	default:
		return fmt.Errorf("unknown event type %d", env.EventType)
	}
}
