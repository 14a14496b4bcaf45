// Package pricing holds the monetary math for deposits, withdrawals and
// fees. All amounts are arbitrary-precision sdkmath.Int in the token's
// native precision; prices and venue readings are sdkmath.LegacyDec with 18
// fractional digits.
//
// Rounding direction is part of the contract: round down what a user
// receives, round up what a user pays. Never overpay, never undercharge.
package pricing

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrZeroPrice      = errors.New("price is zero")
	ErrNoActiveShares = errors.New("no active shares")
)

func pow10(decimals uint8) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDec(10).Power(uint64(decimals))
}

// BalancedAmount derives the paired-instrument amount such that both legs of
// a spot operation represent equal value: amountA * price(A) / price(B),
// adjusted for the two tokens' native precisions, rounded down.
func BalancedAmount(amountA sdkmath.Int, priceA, priceB sdkmath.LegacyDec, decimalsA, decimalsB uint8) (sdkmath.Int, error) {
	if priceB.IsNil() || priceB.IsZero() {
		return sdkmath.Int{}, fmt.Errorf("%w: quote leg", ErrZeroPrice)
	}

	// Multiply through before dividing so the single truncating division is
	// the only rounding point. Integer amounts times 18-digit prices stay
	// within 18 fractional digits, so the products are exact.
	num := sdkmath.LegacyNewDecFromInt(amountA).Mul(priceA).Mul(pow10(decimalsB))
	den := priceB.Mul(pow10(decimalsA))
	return num.QuoTruncate(den).TruncateInt(), nil
}

// WithdrawAmount is the pro-rata-ownership formula:
// requested * effectiveBalance / totalActive, rounded down. Venue-side
// trading losses or gains are socialized across all share-holders because
// the payout scales with the effective balance, not the nominal shares.
func WithdrawAmount(effectiveBalance, requested, totalActive sdkmath.Int) (sdkmath.Int, error) {
	if totalActive.IsZero() {
		return sdkmath.Int{}, ErrNoActiveShares
	}
	return requested.Mul(effectiveBalance).Quo(totalActive), nil
}

// SettlementFee converts the venue's fixed fee (expressed in the venue's fee
// currency, fixed-point 18) into token units via the token's price, rounded
// up so the operator is never under-reimbursed.
func SettlementFee(venueFee, tokenPrice sdkmath.LegacyDec, tokenDecimals uint8) (sdkmath.Int, error) {
	if tokenPrice.IsNil() || tokenPrice.IsZero() {
		return sdkmath.Int{}, ErrZeroPrice
	}
	// Scale before dividing; the division rounds up so a quotient sitting
	// exactly on an integer boundary never drops a unit before Ceil.
	scaled := venueFee.Mul(pow10(tokenDecimals))
	return scaled.QuoRoundUp(tokenPrice).Ceil().TruncateInt(), nil
}

// FromVenue converts a venue fixed-point(18) reading into native token
// units. When the token has fewer than 18 fractional digits the venue value
// may not be representable exactly; roundUp selects which side to err on.
func FromVenue(raw sdkmath.LegacyDec, tokenDecimals uint8, roundUp bool) sdkmath.Int {
	scaled := raw.Mul(pow10(tokenDecimals))
	if roundUp {
		return scaled.Ceil().TruncateInt()
	}
	return scaled.TruncateInt()
}

// ToVenue converts a native token amount into the venue's fixed-point(18)
// representation. Always exact: native precision never exceeds 18 digits.
func ToVenue(amount sdkmath.Int, tokenDecimals uint8) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromInt(amount).Quo(pow10(tokenDecimals))
}
