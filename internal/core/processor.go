package core

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/event"
	"vaultledger/internal/ledger"
	"vaultledger/internal/pricing"
	"vaultledger/internal/queue"
)

// AdvanceCommand is the external operator's settlement instruction for the
// next pending queue entry. CommandID dedups redelivered NATS messages;
// EntryID must name the entry immediately after the cursor; Response is the
// operator's settlement report, empty to decline the entry.
type AdvanceCommand struct {
	CommandID uuid.UUID
	Operator  uuid.UUID
	EntryID   uint64
	Response  []byte
}

// Advance settles the next pending entry and moves the cursor past it,
// unconditionally. A processing failure of any sort, panics included,
// downgrades the entry to skipped rather than wedging the queue: the funds
// stay recoverable through later requests, the ordering does not.
func (e *Engine) Advance(ctx context.Context, cmd AdvanceCommand, at time.Time) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.idempotency.IsDuplicate("advance", cmd.CommandID.String()) {
		e.rejected("advance", "duplicate")
		return nil
	}

	// Redelivery of an already settled entry under a fresh command ID is
	// routine with at-least-once transport, but only when it carries the
	// same response that settled the entry. Anything else targeting a
	// behind-cursor entry is out of order, not a redelivery.
	if cmd.EntryID != 0 && cmd.EntryID <= e.queue.UpTo() {
		entry, ok := e.queue.Entry(cmd.EntryID)
		if ok && entry.ResponseDigest == queue.DigestResponse(cmd.Response) {
			e.idempotency.MarkProcessed("advance", cmd.CommandID.String())
			e.rejected("advance", "already_settled")
			return nil
		}
		e.rejected("advance", "stale_entry")
		return fmt.Errorf("%w: entry %d is already settled", queue.ErrStaleEntry, cmd.EntryID)
	}

	head, err := e.queue.Head()
	if err != nil {
		e.rejected("advance", "empty_queue")
		return err
	}

	pool, err := e.registry.Pool(head.PoolID)
	if err != nil {
		// A queued entry always references a registered pool; pools are
		// never removed.
		panic(fmt.Sprintf("FATAL: queue entry %d references unknown pool %d", head.ID, head.PoolID))
	}
	if cmd.Operator != pool.Relay.ExternalOperator() {
		e.rejected("advance", "not_operator")
		return fmt.Errorf("%w: pool=%d", ErrNotAuthorizedOperator, head.PoolID)
	}
	if cmd.EntryID != head.ID {
		e.rejected("advance", "stale_entry")
		return fmt.Errorf("%w: got %d, next is %d", queue.ErrStaleEntry, cmd.EntryID, head.ID)
	}

	settled, settleErr := e.settleEntry(ctx, pool, head, cmd)

	state := queue.StateProcessed
	if settleErr != nil {
		state = queue.StateSkipped
	}
	advanced, err := e.queue.Advance(head.ID, state)
	if err != nil {
		panic(fmt.Sprintf("FATAL: cursor advance failed for entry %d: %v", head.ID, err))
	}
	advanced.ResponseDigest = queue.DigestResponse(cmd.Response)

	if settleErr != nil {
		e.log.Warn().Err(settleErr).
			Uint64("entry", head.ID).
			Uint64("pool", head.PoolID).
			Str("kind", head.Kind.String()).
			Msg("settlement failed, entry skipped")
		e.emit(&event.EntrySkipped{
			Entry:   head.ID,
			Pool:    head.PoolID,
			Command: cmd.CommandID,
			Kind:    head.Kind.String(),
			Reason:  settleErr.Error(),
		}, at)
	} else {
		e.emit(settled, at)
		e.postCheckInvariants(pool)
	}

	e.idempotency.MarkProcessed("advance", cmd.CommandID.String())

	if e.metrics != nil {
		e.metrics.QueueSettled.WithLabelValues(head.Kind.String(), state.String()).Inc()
		e.metrics.QueueCursor.Set(float64(e.queue.UpTo()))
		e.metrics.QueueDepth.Set(float64(e.queue.PendingLen()))
		e.metrics.OpDuration.WithLabelValues("advance").Observe(time.Since(start).Seconds())
	}
	e.applied("advance")
	return nil
}

// settleEntry dispatches on the entry kind behind a recover boundary. A
// panic inside settlement must not take the process down mid-advance; it
// becomes a skip like any other failure.
func (e *Engine) settleEntry(ctx context.Context, pool *ledger.Pool, entry *queue.Entry, cmd AdvanceCommand) (settled event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			settled = nil
			err = fmt.Errorf("settlement panic: %v", r)
		}
	}()

	switch entry.Kind {
	case queue.KindDepositPerp:
		return e.settleDepositPerp(pool, entry, cmd)
	case queue.KindDepositSpot:
		return e.settleDepositSpot(pool, entry, cmd)
	case queue.KindWithdrawPerp:
		return e.settleWithdrawPerp(ctx, pool, entry, cmd)
	case queue.KindWithdrawSpot:
		return e.settleWithdrawSpot(ctx, pool, entry, cmd)
	default:
		return nil, fmt.Errorf("unknown entry kind %d", entry.Kind)
	}
}

func (e *Engine) settleDepositPerp(pool *ledger.Pool, entry *queue.Entry, cmd AdvanceCommand) (event.Event, error) {
	var intent queue.DepositPerpIntent
	if err := queue.DecodeIntent(entry.Payload, &intent); err != nil {
		return nil, err
	}
	var resp queue.DepositPerpResponse
	if err := queue.DecodeResponse(cmd.Response, &resp); err != nil {
		return nil, err
	}
	if resp.Shares.IsNil() || !resp.Shares.IsPositive() {
		return nil, fmt.Errorf("venue assigned no shares")
	}

	tl, err := pool.Token(intent.Token)
	if err != nil {
		return nil, err
	}
	if err := tl.Credit(intent.Receiver, resp.Shares); err != nil {
		return nil, err
	}

	return &event.DepositSettled{
		Entry:    entry.ID,
		Pool:     pool.ID,
		Command:  cmd.CommandID,
		Receiver: intent.Receiver,
		Legs: []event.TokenSettlement{
			{Token: intent.Token, Settled: resp.Settled, Shares: resp.Shares},
		},
	}, nil
}

// settleDepositSpot credits both legs or neither. The quote leg's settled
// amount is rechecked against the slippage bounds fixed at enqueue time:
// the venue's execution may have drifted from the price used then.
func (e *Engine) settleDepositSpot(pool *ledger.Pool, entry *queue.Entry, cmd AdvanceCommand) (event.Event, error) {
	var intent queue.DepositSpotIntent
	if err := queue.DecodeIntent(entry.Payload, &intent); err != nil {
		return nil, err
	}
	var resp queue.DepositSpotResponse
	if err := queue.DecodeResponse(cmd.Response, &resp); err != nil {
		return nil, err
	}
	if resp.BaseShares.IsNil() || resp.QuoteShares.IsNil() ||
		!resp.BaseShares.IsPositive() || !resp.QuoteShares.IsPositive() {
		return nil, fmt.Errorf("venue assigned no shares")
	}
	if resp.QuoteSettled.LT(intent.MinQuote) || resp.QuoteSettled.GT(intent.MaxQuote) {
		return nil, fmt.Errorf("%w: settled=%s bounds=[%s,%s]",
			ErrSlippageTooHigh, resp.QuoteSettled, intent.MinQuote, intent.MaxQuote)
	}

	baseTL, err := pool.Token(intent.BaseToken)
	if err != nil {
		return nil, err
	}
	quoteTL, err := pool.Token(intent.QuoteToken)
	if err != nil {
		return nil, err
	}

	// All-or-nothing: check the quote cap before touching the base leg.
	if quoteTL.Active.Add(resp.QuoteShares).GT(quoteTL.Hardcap) {
		return nil, fmt.Errorf("%w: token=%s", ledger.ErrHardcapReached, intent.QuoteToken)
	}
	if err := baseTL.Credit(intent.Receiver, resp.BaseShares); err != nil {
		return nil, err
	}
	if err := quoteTL.Credit(intent.Receiver, resp.QuoteShares); err != nil {
		panic(fmt.Sprintf("FATAL: quote credit failed after precheck: %v", err))
	}

	return &event.DepositSettled{
		Entry:    entry.ID,
		Pool:     pool.ID,
		Command:  cmd.CommandID,
		Receiver: intent.Receiver,
		Legs: []event.TokenSettlement{
			{Token: intent.BaseToken, Settled: resp.BaseSettled, Shares: resp.BaseShares},
			{Token: intent.QuoteToken, Settled: resp.QuoteSettled, Shares: resp.QuoteShares},
		},
	}, nil
}

func (e *Engine) settleWithdrawPerp(ctx context.Context, pool *ledger.Pool, entry *queue.Entry, cmd AdvanceCommand) (event.Event, error) {
	var intent queue.WithdrawPerpIntent
	if err := queue.DecodeIntent(entry.Payload, &intent); err != nil {
		return nil, err
	}
	var resp queue.WithdrawResponse
	if err := queue.DecodeResponse(cmd.Response, &resp); err != nil {
		return nil, err
	}

	plan, err := e.planWithdrawLeg(ctx, pool, entry.Sender, intent.Token, intent.Shares, resp.Released)
	if err != nil {
		return nil, err
	}
	leg := e.applyWithdrawLeg(ctx, pool, entry.Sender, intent.Receiver, plan)

	return &event.WithdrawSettled{
		Entry:    entry.ID,
		Pool:     pool.ID,
		Command:  cmd.CommandID,
		Receiver: intent.Receiver,
		Legs:     []event.TokenRelease{leg},
	}, nil
}

func (e *Engine) settleWithdrawSpot(ctx context.Context, pool *ledger.Pool, entry *queue.Entry, cmd AdvanceCommand) (event.Event, error) {
	var intent queue.WithdrawSpotIntent
	if err := queue.DecodeIntent(entry.Payload, &intent); err != nil {
		return nil, err
	}
	var resp queue.WithdrawSpotResponse
	if err := queue.DecodeResponse(cmd.Response, &resp); err != nil {
		return nil, err
	}

	// Both legs are planned before either mutates: a failure on the quote
	// leg must not leave a half-settled entry.
	plans := make([]withdrawPlan, 0, 2)

	if intent.BaseShares.IsPositive() {
		plan, err := e.planWithdrawLeg(ctx, pool, entry.Sender, intent.BaseToken, intent.BaseShares, resp.BaseReleased)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if intent.QuoteShares.IsPositive() {
		plan, err := e.planWithdrawLeg(ctx, pool, entry.Sender, intent.QuoteToken, intent.QuoteShares, resp.QuoteReleased)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	legs := make([]event.TokenRelease, 0, len(plans))
	for _, plan := range plans {
		legs = append(legs, e.applyWithdrawLeg(ctx, pool, entry.Sender, intent.Receiver, plan))
	}

	return &event.WithdrawSettled{
		Entry:    entry.ID,
		Pool:     pool.ID,
		Command:  cmd.CommandID,
		Receiver: intent.Receiver,
		Legs:     legs,
	}, nil
}

// withdrawPlan is a fully computed, not yet applied withdrawal leg.
type withdrawPlan struct {
	tl       *ledger.TokenLedger
	token    string
	shares   sdkmath.Int
	released sdkmath.Int
	fee      sdkmath.Int
}

// planWithdrawLeg computes the pro-rata payout from the reconciled venue
// balance, caps it by the operator's reported release when one is given,
// and carves the settlement fee out of it. No state changes.
func (e *Engine) planWithdrawLeg(
	ctx context.Context,
	pool *ledger.Pool,
	sender uuid.UUID,
	token string,
	shares sdkmath.Int,
	reported *sdkmath.Int,
) (withdrawPlan, error) {
	none := withdrawPlan{}

	tl, err := pool.Token(token)
	if err != nil {
		return none, err
	}
	if tl.ActiveOf(sender).LT(shares) {
		return none, fmt.Errorf("%w: token=%s", ledger.ErrInsufficientShares, token)
	}
	instrument, err := e.registry.InstrumentFor(token)
	if err != nil {
		return none, err
	}

	effective, err := e.reconciler.EffectiveBalance(ctx, pool.Relay.VenueAccount(), instrument, tl.Decimals)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ReconcileErrors.Inc()
		}
		return none, fmt.Errorf("reconcile %s: %w", token, err)
	}

	released, err := pricing.WithdrawAmount(effective, shares, tl.Active)
	if err != nil {
		return none, err
	}
	if reported != nil && reported.LT(released) {
		released = *reported
	}

	price, err := e.oracle.Price(ctx, instrument)
	if err != nil {
		return none, fmt.Errorf("price for %s: %w", token, err)
	}
	fee, err := pricing.SettlementFee(e.cfg.VenueFee, price, tl.Decimals)
	if err != nil {
		return none, err
	}
	if fee.GT(released) {
		fee = released
	}

	return withdrawPlan{tl: tl, token: token, shares: shares, released: released, fee: fee}, nil
}

// applyWithdrawLeg books a planned leg and asks the venue to move the
// released funds to the relay for claiming.
func (e *Engine) applyWithdrawLeg(ctx context.Context, pool *ledger.Pool, sender, receiver uuid.UUID, plan withdrawPlan) event.TokenRelease {
	if err := plan.tl.SettleWithdrawal(sender, plan.shares, plan.released, plan.fee); err != nil {
		// The share balance was checked during planning and nothing else
		// runs between plan and apply under the engine lock.
		panic(fmt.Sprintf("FATAL: withdrawal apply failed after plan: %v", err))
	}

	if plan.released.IsPositive() {
		request, err := queue.EncodeIntent(queue.ReleaseRequest{Token: plan.token, Amount: plan.released, Receiver: receiver})
		if err != nil {
			panic(fmt.Sprintf("FATAL: release request encode: %v", err))
		}
		if err := pool.Relay.Submit(ctx, request); err != nil {
			e.log.Warn().Err(err).Str("token", plan.token).Uint64("pool", pool.ID).
				Msg("release submit failed, funds claimable once relayed")
			if e.metrics != nil {
				e.metrics.RelayErrors.WithLabelValues(fmt.Sprint(pool.ID), "release").Inc()
			}
		}
	}

	return event.TokenRelease{Token: plan.token, Shares: plan.shares, Released: plan.released, Fee: plan.fee}
}

// postCheckInvariants runs the ledger validators over every token of the
// settled pool. A violation here means a bug wrote impossible state; the
// process halts rather than persisting it.
func (e *Engine) postCheckInvariants(pool *ledger.Pool) {
	for _, tl := range pool.Tokens {
		if err := e.validator.CheckSolvency(tl); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
		}
		if err := e.validator.CheckNonNegative(tl); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
		}
	}
}

func (e *Engine) rejected(op, reason string) {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
}
