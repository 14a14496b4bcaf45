package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/venue"
)

// PoolKind distinguishes spot pools (paired instruments) from perp pools.
type PoolKind int8

const (
	PoolKindSpot PoolKind = iota + 1
	PoolKindPerp
)

func (k PoolKind) String() string {
	switch k {
	case PoolKindSpot:
		return "spot"
	case PoolKindPerp:
		return "perp"
	default:
		return "unknown"
	}
}

// ParsePoolKind maps the wire representation back to a PoolKind.
func ParsePoolKind(s string) (PoolKind, error) {
	switch s {
	case "spot":
		return PoolKindSpot, nil
	case "perp":
		return PoolKindPerp, nil
	default:
		return 0, fmt.Errorf("unknown pool kind %q", s)
	}
}

// Pool aggregates one or more tokens deployed to the venue through a single
// relay channel. Kind and Relay are immutable after creation; the token set
// only grows.
type Pool struct {
	ID     uint64
	Kind   PoolKind
	Relay  venue.RelayChannel
	Tokens map[string]*TokenLedger
}

// Token returns the ledger for an active token, or an error naming which
// precondition failed.
func (p *Pool) Token(token string) (*TokenLedger, error) {
	tl, ok := p.Tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: pool=%d token=%s", ErrUnknownToken, p.ID, token)
	}
	if !tl.IsActive {
		return nil, fmt.Errorf("%w: pool=%d token=%s", ErrTokenNotActive, p.ID, token)
	}
	return tl, nil
}

// TokenLedger is the per-pool, per-token balance state. Active shares are
// deployed to the venue and owned pro-rata by depositors; pending amounts
// await claim after a settled withdrawal; fees are owed to the operator and
// netted at claim time.
//
// Active == sum of UserActive at all times outside a single request's
// processing. All mutators below preserve that by updating the aggregate
// and the user entry in the same call.
type TokenLedger struct {
	Symbol     string
	Decimals   uint8
	Instrument uint32

	Active      sdkmath.Int
	UserActive  map[uuid.UUID]sdkmath.Int
	UserPending map[uuid.UUID]sdkmath.Int
	UserFee     map[uuid.UUID]sdkmath.Int

	Hardcap  sdkmath.Int
	IsActive bool

	// Lifetime counters for conservation checks and projections.
	TotalDeposited sdkmath.Int
	TotalClaimed   sdkmath.Int
}

func NewTokenLedger(symbol string, decimals uint8, instrument uint32, hardcap sdkmath.Int) *TokenLedger {
	return &TokenLedger{
		Symbol:         symbol,
		Decimals:       decimals,
		Instrument:     instrument,
		Active:         sdkmath.ZeroInt(),
		UserActive:     make(map[uuid.UUID]sdkmath.Int),
		UserPending:    make(map[uuid.UUID]sdkmath.Int),
		UserFee:        make(map[uuid.UUID]sdkmath.Int),
		Hardcap:        hardcap,
		IsActive:       true,
		TotalDeposited: sdkmath.ZeroInt(),
		TotalClaimed:   sdkmath.ZeroInt(),
	}
}

// Credit adds settled deposit shares to a user. Fails when the credit would
// push the aggregate over the hardcap; no state changes on failure.
func (tl *TokenLedger) Credit(user uuid.UUID, shares sdkmath.Int) error {
	next := tl.Active.Add(shares)
	if next.GT(tl.Hardcap) {
		return fmt.Errorf("%w: token=%s active=%s credit=%s hardcap=%s",
			ErrHardcapReached, tl.Symbol, tl.Active, shares, tl.Hardcap)
	}

	tl.Active = next
	tl.UserActive[user] = tl.userActive(user).Add(shares)
	tl.TotalDeposited = tl.TotalDeposited.Add(shares)
	return nil
}

// SettleWithdrawal debits requested active shares from the user and books the
// released amount: fee to the operator's reimbursement bucket, the remainder
// to the user's pending balance.
func (tl *TokenLedger) SettleWithdrawal(user uuid.UUID, requested, released, fee sdkmath.Int) error {
	have := tl.userActive(user)
	if have.LT(requested) {
		return fmt.Errorf("%w: token=%s user=%s have=%s requested=%s",
			ErrInsufficientShares, tl.Symbol, user, have, requested)
	}

	tl.Active = tl.Active.Sub(requested)
	tl.UserActive[user] = have.Sub(requested)
	tl.UserFee[user] = tl.userFee(user).Add(fee)
	tl.UserPending[user] = tl.userPending(user).Add(released.Sub(fee))
	return nil
}

// TakeClaim splits a claimable amount into fee and user portions, capped by
// available, and debits both buckets. Fee is drained first so the operator is
// reimbursed before the user is paid out of a partial arrival.
func (tl *TokenLedger) TakeClaim(user uuid.UUID, available sdkmath.Int) (feePart, userPart sdkmath.Int) {
	fee := tl.userFee(user)
	pending := tl.userPending(user)

	claimable := sdkmath.MinInt(pending.Add(fee), available)
	feePart = sdkmath.MinInt(fee, claimable)
	userPart = claimable.Sub(feePart)

	tl.UserFee[user] = fee.Sub(feePart)
	tl.UserPending[user] = pending.Sub(userPart)
	tl.TotalClaimed = tl.TotalClaimed.Add(claimable)
	return feePart, userPart
}

// RevertClaim returns a taken claim split to the user's buckets. Used when
// the external payout behind the claim could not be executed.
func (tl *TokenLedger) RevertClaim(user uuid.UUID, feePart, userPart sdkmath.Int) {
	tl.UserFee[user] = tl.userFee(user).Add(feePart)
	tl.UserPending[user] = tl.userPending(user).Add(userPart)
	tl.TotalClaimed = tl.TotalClaimed.Sub(feePart.Add(userPart))
}

// PendingOf returns the user's claim-awaiting balance.
func (tl *TokenLedger) PendingOf(user uuid.UUID) sdkmath.Int { return tl.userPending(user) }

// FeeOf returns the operator reimbursement accrued against the user.
func (tl *TokenLedger) FeeOf(user uuid.UUID) sdkmath.Int { return tl.userFee(user) }

// ActiveOf returns the user's active share balance.
func (tl *TokenLedger) ActiveOf(user uuid.UUID) sdkmath.Int { return tl.userActive(user) }

func (tl *TokenLedger) userActive(user uuid.UUID) sdkmath.Int {
	if v, ok := tl.UserActive[user]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (tl *TokenLedger) userPending(user uuid.UUID) sdkmath.Int {
	if v, ok := tl.UserPending[user]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (tl *TokenLedger) userFee(user uuid.UUID) sdkmath.Int {
	if v, ok := tl.UserFee[user]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}
