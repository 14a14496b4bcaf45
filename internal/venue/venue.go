// Package venue defines the capability interfaces through which the ledger
// talks to the outside world: the settlement venue's oracle, the per-pool
// relay channel, and fungible asset transfer. The core consumes these,
// it never implements them.
package venue

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Decimals is the venue's fixed-point precision. All raw oracle readings and
// backlog amounts are expressed with 18 fractional digits regardless of the
// token's native precision.
const Decimals = 18

// BacklogKind discriminates entries in the venue's own unsettled queue.
type BacklogKind int8

const (
	BacklogDeposit BacklogKind = iota + 1
	BacklogWithdrawal
)

// BacklogEntry is one transaction the venue has accepted but not yet folded
// into its point balance.
type BacklogEntry struct {
	Sender     uuid.UUID
	Instrument uint32
	Kind       BacklogKind
	Amount     sdkmath.LegacyDec // venue fixed-point (18)
}

// BacklogView is the venue's unsettled tail at a point in time.
// Entries covers indexes [LastApplied, Tail).
type BacklogView struct {
	LastApplied uint64
	Tail        uint64
	Entries     []BacklogEntry
}

// Oracle supplies venue-side prices and balances.
type Oracle interface {
	// Price returns the current fixed-point(18) price for an instrument.
	Price(ctx context.Context, instrument uint32) (sdkmath.LegacyDec, error)

	// RawBalance returns the venue's point balance for an account/instrument,
	// in fixed-point(18). Stale relative to the venue's own backlog.
	RawBalance(ctx context.Context, account uuid.UUID, instrument uint32) (sdkmath.LegacyDec, error)

	// PendingBacklog returns the venue's unsettled transaction tail.
	PendingBacklog(ctx context.Context) (*BacklogView, error)
}

// RelayChannel is the per-pool conduit that custodies in-transit funds and
// forwards requests to the venue. Exactly one external operator is bound to
// each channel; only that operator may drive settlement for entries routed
// through it.
type RelayChannel interface {
	// Submit forwards an encoded request to the venue.
	Submit(ctx context.Context, encoded []byte) error

	// Claim pulls settled funds from the channel to the ledger's account.
	Claim(ctx context.Context, token string, amount sdkmath.Int) error

	// AuthorizeSpender grants the channel standing authorization to move a token.
	AuthorizeSpender(ctx context.Context, token string) error

	// Link performs the one-time authorization handshake so the venue accepts
	// future requests routed through this channel. Called once at pool creation.
	Link(ctx context.Context) error

	// BalanceOf reports the token amount currently held by the channel,
	// in the token's native precision.
	BalanceOf(ctx context.Context, token string) (sdkmath.Int, error)

	// ExternalOperator is the single account allowed to advance entries
	// routed through this channel.
	ExternalOperator() uuid.UUID

	// VenueAccount is the channel's account identifier on the venue side,
	// used to match backlog entries during reconciliation.
	VenueAccount() uuid.UUID
}

// RelayDialer opens the relay channel for a newly created pool.
type RelayDialer interface {
	Open(ctx context.Context, poolID uint64) (RelayChannel, error)
}

// Asset is an opaque fungible-asset-transfer capability with
// transfer/approve semantics.
type Asset interface {
	TransferFrom(ctx context.Context, owner, to uuid.UUID, amount sdkmath.Int) error
	Transfer(ctx context.Context, to uuid.UUID, amount sdkmath.Int) error
	Approve(ctx context.Context, spender uuid.UUID, amount sdkmath.Int) error
	Decimals() uint8
}

// Assets resolves token symbols to their transfer capability.
type Assets interface {
	Resolve(token string) (Asset, bool)
}
