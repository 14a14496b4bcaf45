// Package reconcile computes the effective venue-side balance of an
// account. The venue settles its own order flow asynchronously, so the raw
// balance it reports may not yet include deposits and withdrawals sitting in
// its unsettled backlog. Pricing decisions made against the raw number alone
// would double-count or miss in-flight funds.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/pricing"
	"vaultledger/internal/venue"
)

// ErrBacklogTooLarge is returned when the venue backlog exceeds the
// configured scan bound. Settlement of the triggering entry fails rather
// than blocking the queue on an unbounded scan.
var ErrBacklogTooLarge = errors.New("venue backlog exceeds scan limit")

const DefaultMaxScan = 10_000

// Reconciler nets unsettled venue backlog entries against raw balances.
type Reconciler struct {
	oracle  venue.Oracle
	maxScan int
}

func New(oracle venue.Oracle, maxScan int) *Reconciler {
	if maxScan <= 0 {
		maxScan = DefaultMaxScan
	}
	return &Reconciler{oracle: oracle, maxScan: maxScan}
}

// EffectiveBalance returns the account's balance in the given instrument as
// it will stand once the venue works through its current backlog, in native
// token units.
//
// The raw reading rounds up and pending deposits round down, so the
// effective balance never understates in a way that shorts a later pro-rata
// computation; pending withdrawals round up so it never overstates either.
// The result clamps at zero: a backlog of withdrawals can transiently exceed
// the raw balance.
func (r *Reconciler) EffectiveBalance(ctx context.Context, account uuid.UUID, instrument uint32, decimals uint8) (sdkmath.Int, error) {
	raw, err := r.oracle.RawBalance(ctx, account, instrument)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("raw balance: %w", err)
	}
	balance := pricing.FromVenue(raw, decimals, true)

	backlog, err := r.oracle.PendingBacklog(ctx)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("pending backlog: %w", err)
	}
	if len(backlog.Entries) > r.maxScan {
		return sdkmath.Int{}, fmt.Errorf("%w: %d entries, limit %d", ErrBacklogTooLarge, len(backlog.Entries), r.maxScan)
	}

	for _, e := range backlog.Entries {
		if e.Sender != account || e.Instrument != instrument {
			continue
		}
		switch e.Kind {
		case venue.BacklogDeposit:
			balance = balance.Add(pricing.FromVenue(e.Amount, decimals, false))
		case venue.BacklogWithdrawal:
			balance = balance.Sub(pricing.FromVenue(e.Amount, decimals, true))
		}
	}

	if balance.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return balance, nil
}
