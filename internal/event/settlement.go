package event

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// TokenSettlement is one leg of a settled deposit: the amount the venue
// accepted and the shares credited for it.
type TokenSettlement struct {
	Token   string      `json:"token"`
	Settled sdkmath.Int `json:"settled"`
	Shares  sdkmath.Int `json:"shares"`
}

type DepositSettled struct {
	Entry    uint64            `json:"entry"`
	Pool     uint64            `json:"pool"`
	Command  uuid.UUID         `json:"command"`
	Receiver uuid.UUID         `json:"receiver"`
	Legs     []TokenSettlement `json:"legs"`
}

// Settlement events key on the operator command that advanced the queue, so
// the event log doubles as the tier-2 dedup lookup for redelivered commands.
func (e *DepositSettled) IdempotencyKey() string {
	return fmt.Sprintf("advance:%s", e.Command)
}

func (e *DepositSettled) EventType() EventType { return EventTypeDepositSettled }
func (e *DepositSettled) PoolID() *uint64      { return &e.Pool }
func (e *DepositSettled) EntryID() uint64      { return e.Entry }

// TokenRelease is one leg of a settled withdrawal: shares burned, tokens
// released, and the settlement fee carved out of the release.
type TokenRelease struct {
	Token    string      `json:"token"`
	Shares   sdkmath.Int `json:"shares"`
	Released sdkmath.Int `json:"released"`
	Fee      sdkmath.Int `json:"fee"`
}

type WithdrawSettled struct {
	Entry    uint64         `json:"entry"`
	Pool     uint64         `json:"pool"`
	Command  uuid.UUID      `json:"command"`
	Receiver uuid.UUID      `json:"receiver"`
	Legs     []TokenRelease `json:"legs"`
}

func (e *WithdrawSettled) IdempotencyKey() string {
	return fmt.Sprintf("advance:%s", e.Command)
}

func (e *WithdrawSettled) EventType() EventType { return EventTypeWithdrawSettled }
func (e *WithdrawSettled) PoolID() *uint64      { return &e.Pool }
func (e *WithdrawSettled) EntryID() uint64      { return e.Entry }
