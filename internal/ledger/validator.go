package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// InvariantValidator checks ledger consistency after settled operations.
// A failed check means ledger state was corrupted by a bug, not by bad input;
// the engine treats it as fatal.
type InvariantValidator struct{}

func NewInvariantValidator() *InvariantValidator {
	return &InvariantValidator{}
}

// CheckSolvency verifies Active == sum of UserActive for a token ledger.
func (v *InvariantValidator) CheckSolvency(tl *TokenLedger) error {
	sum := sdkmath.ZeroInt()
	for _, amount := range tl.UserActive {
		sum = sum.Add(amount)
	}
	if !tl.Active.Equal(sum) {
		return fmt.Errorf("solvency violated: token=%s active=%s sum(userActive)=%s",
			tl.Symbol, tl.Active, sum)
	}
	return nil
}

// CheckNonNegative verifies no balance bucket has gone below zero.
func (v *InvariantValidator) CheckNonNegative(tl *TokenLedger) error {
	if tl.Active.IsNegative() {
		return fmt.Errorf("negative active amount: token=%s active=%s", tl.Symbol, tl.Active)
	}
	for user, amount := range tl.UserActive {
		if amount.IsNegative() {
			return fmt.Errorf("negative user active: token=%s user=%s amount=%s", tl.Symbol, user, amount)
		}
	}
	for user, amount := range tl.UserPending {
		if amount.IsNegative() {
			return fmt.Errorf("negative user pending: token=%s user=%s amount=%s", tl.Symbol, user, amount)
		}
	}
	for user, amount := range tl.UserFee {
		if amount.IsNegative() {
			return fmt.Errorf("negative user fee: token=%s user=%s amount=%s", tl.Symbol, user, amount)
		}
	}
	return nil
}

// CheckHardcap verifies the post-settlement hardcap property.
func (v *InvariantValidator) CheckHardcap(tl *TokenLedger) error {
	if tl.Active.GT(tl.Hardcap) {
		return fmt.Errorf("hardcap exceeded: token=%s active=%s hardcap=%s",
			tl.Symbol, tl.Active, tl.Hardcap)
	}
	return nil
}

// CheckAll runs every invariant against a token ledger.
func (v *InvariantValidator) CheckAll(tl *TokenLedger) error {
	if err := v.CheckSolvency(tl); err != nil {
		return err
	}
	if err := v.CheckNonNegative(tl); err != nil {
		return err
	}
	return v.CheckHardcap(tl)
}
