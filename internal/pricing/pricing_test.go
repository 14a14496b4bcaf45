package pricing

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

// ============================================================
// BalancedAmount
// ============================================================

func TestBalancedAmountEqualValue(t *testing.T) {
	// 2 base units at $2000 against a $1 quote, 6 decimals on both sides.
	amountA := sdkmath.NewInt(2_000_000)
	got, err := BalancedAmount(amountA, dec("2000"), dec("1"), 6, 6)
	if err != nil {
		t.Fatalf("BalancedAmount: %v", err)
	}
	want := sdkmath.NewInt(4_000_000_000)
	if !got.Equal(want) {
		t.Fatalf("balanced amount = %s, want %s", got, want)
	}
}

func TestBalancedAmountCrossDecimals(t *testing.T) {
	// 1 unit of an 18-decimal token at $3000 balanced against a 6-decimal $1 token.
	amountA, _ := sdkmath.NewIntFromString("1000000000000000000")
	got, err := BalancedAmount(amountA, dec("3000"), dec("1"), 18, 6)
	if err != nil {
		t.Fatalf("BalancedAmount: %v", err)
	}
	want := sdkmath.NewInt(3_000_000_000)
	if !got.Equal(want) {
		t.Fatalf("balanced amount = %s, want %s", got, want)
	}
}

func TestBalancedAmountRoundsDown(t *testing.T) {
	// 1 unit at $1 against a $3 quote: 0.333... units, truncated.
	got, err := BalancedAmount(sdkmath.NewInt(1_000_000), dec("1"), dec("3"), 6, 6)
	if err != nil {
		t.Fatalf("BalancedAmount: %v", err)
	}
	want := sdkmath.NewInt(333_333)
	if !got.Equal(want) {
		t.Fatalf("balanced amount = %s, want %s (must truncate)", got, want)
	}
}

func TestBalancedAmountNeverExceedsFloor(t *testing.T) {
	// 1e18 at a 2/3 price ratio: the exact value is 0.666... recurring, so
	// any rounding at the 18th digit lands one unit above the floor.
	amountA, _ := sdkmath.NewIntFromString("1000000000000000000")
	got, err := BalancedAmount(amountA, dec("2"), dec("3"), 18, 18)
	if err != nil {
		t.Fatalf("BalancedAmount: %v", err)
	}
	want, _ := sdkmath.NewIntFromString("666666666666666666")
	if !got.Equal(want) {
		t.Fatalf("balanced amount = %s, want %s (floor, never rounded up)", got, want)
	}
}

func TestBalancedAmountZeroQuotePrice(t *testing.T) {
	_, err := BalancedAmount(sdkmath.NewInt(1), dec("1"), dec("0"), 6, 6)
	if !errors.Is(err, ErrZeroPrice) {
		t.Fatalf("expected ErrZeroPrice, got %v", err)
	}
}

// ============================================================
// WithdrawAmount
// ============================================================

func TestWithdrawAmountFullBalance(t *testing.T) {
	got, err := WithdrawAmount(sdkmath.NewInt(1000), sdkmath.NewInt(500), sdkmath.NewInt(500))
	if err != nil {
		t.Fatalf("WithdrawAmount: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("payout = %s, want 1000", got)
	}
}

func TestWithdrawAmountSocializesLoss(t *testing.T) {
	// Effective balance is half of outstanding shares: everyone takes the
	// same haircut regardless of withdrawal order.
	got, err := WithdrawAmount(sdkmath.NewInt(500), sdkmath.NewInt(200), sdkmath.NewInt(1000))
	if err != nil {
		t.Fatalf("WithdrawAmount: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(100)) {
		t.Fatalf("payout = %s, want 100", got)
	}
}

func TestWithdrawAmountRoundsDown(t *testing.T) {
	// 1 * 10 / 3 = 3.33..., user receives 3.
	got, err := WithdrawAmount(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.NewInt(3))
	if err != nil {
		t.Fatalf("WithdrawAmount: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(3)) {
		t.Fatalf("payout = %s, want 3 (must truncate)", got)
	}
}

func TestWithdrawAmountNoShares(t *testing.T) {
	_, err := WithdrawAmount(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.ZeroInt())
	if !errors.Is(err, ErrNoActiveShares) {
		t.Fatalf("expected ErrNoActiveShares, got %v", err)
	}
}

// ============================================================
// SettlementFee
// ============================================================

func TestSettlementFeeExact(t *testing.T) {
	// $2 fee against a $2 token with 6 decimals: exactly one unit.
	got, err := SettlementFee(dec("2"), dec("2"), 6)
	if err != nil {
		t.Fatalf("SettlementFee: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(1_000_000)) {
		t.Fatalf("fee = %s, want 1000000", got)
	}
}

func TestSettlementFeeRoundsUp(t *testing.T) {
	// $1 fee against a $3 token, 0 decimals: 0.33 units rounds to 1.
	got, err := SettlementFee(dec("1"), dec("3"), 0)
	if err != nil {
		t.Fatalf("SettlementFee: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(1)) {
		t.Fatalf("fee = %s, want 1 (must round up)", got)
	}
}

func TestSettlementFeeHalfUnitBoundary(t *testing.T) {
	// 4.000000000000000001 / 2 = 2.0000000000000000005 exactly; rounding the
	// quotient to nearest at the 18th digit would land on 2 and undercharge.
	got, err := SettlementFee(dec("4.000000000000000001"), dec("2"), 0)
	if err != nil {
		t.Fatalf("SettlementFee: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(3)) {
		t.Fatalf("fee = %s, want 3 (ceil of the exact quotient)", got)
	}
}

func TestSettlementFeeZeroPrice(t *testing.T) {
	_, err := SettlementFee(dec("1"), dec("0"), 6)
	if !errors.Is(err, ErrZeroPrice) {
		t.Fatalf("expected ErrZeroPrice, got %v", err)
	}
}

// ============================================================
// Venue precision conversions
// ============================================================

func TestFromVenueExact(t *testing.T) {
	got := FromVenue(dec("1.5"), 6, false)
	if !got.Equal(sdkmath.NewInt(1_500_000)) {
		t.Fatalf("FromVenue = %s, want 1500000", got)
	}
}

func TestFromVenueRounding(t *testing.T) {
	// 1.0000005 units of a 6-decimal token is between two representable
	// values; the caller picks the side.
	raw := dec("1.0000005")
	down := FromVenue(raw, 6, false)
	up := FromVenue(raw, 6, true)
	if !down.Equal(sdkmath.NewInt(1_000_000)) {
		t.Fatalf("round down = %s, want 1000000", down)
	}
	if !up.Equal(sdkmath.NewInt(1_000_001)) {
		t.Fatalf("round up = %s, want 1000001", up)
	}
}

func TestToVenueRoundTrip(t *testing.T) {
	amount := sdkmath.NewInt(123_456_789)
	raw := ToVenue(amount, 6)
	if !raw.Equal(dec("123.456789")) {
		t.Fatalf("ToVenue = %s, want 123.456789", raw)
	}
	back := FromVenue(raw, 6, false)
	if !back.Equal(amount) {
		t.Fatalf("round trip = %s, want %s", back, amount)
	}
}
