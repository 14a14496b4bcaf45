package ledger_test

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/ledger"
	"vaultledger/internal/testutil"
)

func newi(v int64) sdkmath.Int { return sdkmath.NewInt(v) }

// ============================================================================
// Test: Registry
// ============================================================================

func TestRegistry_AddPool(t *testing.T) {
	r := ledger.NewRegistry()
	relay := testutil.NewFakeRelay()

	pool, err := r.AddPool(1, ledger.PoolKindSpot, relay)
	if err != nil {
		t.Fatalf("AddPool failed: %v", err)
	}
	if pool.ID != 1 || pool.Kind != ledger.PoolKindSpot {
		t.Errorf("pool fields wrong: id=%d kind=%v", pool.ID, pool.Kind)
	}
}

func TestRegistry_AddPool_Duplicate(t *testing.T) {
	r := ledger.NewRegistry()
	relay := testutil.NewFakeRelay()

	if _, err := r.AddPool(7, ledger.PoolKindPerp, relay); err != nil {
		t.Fatalf("first AddPool failed: %v", err)
	}
	_, err := r.AddPool(7, ledger.PoolKindSpot, relay)
	if !errors.Is(err, ledger.ErrDuplicatePool) {
		t.Errorf("expected ErrDuplicatePool, got %v", err)
	}
}

func TestRegistry_AddTokens_UnsupportedDecimals(t *testing.T) {
	r := ledger.NewRegistry()
	r.AddPool(1, ledger.PoolKindSpot, testutil.NewFakeRelay())

	err := r.AddTokens(1, []string{"WETH"}, []sdkmath.Int{newi(1000)}, []uint8{19})
	if !errors.Is(err, ledger.ErrUnsupportedDecimals) {
		t.Errorf("expected ErrUnsupportedDecimals, got %v", err)
	}
}

func TestRegistry_AddTokens_AlreadySupported(t *testing.T) {
	r := ledger.NewRegistry()
	r.AddPool(1, ledger.PoolKindSpot, testutil.NewFakeRelay())

	if err := r.AddTokens(1, []string{"USDC"}, []sdkmath.Int{newi(1000)}, []uint8{6}); err != nil {
		t.Fatalf("first AddTokens failed: %v", err)
	}
	err := r.AddTokens(1, []string{"USDC"}, []sdkmath.Int{newi(2000)}, []uint8{6})
	if !errors.Is(err, ledger.ErrAlreadySupported) {
		t.Errorf("expected ErrAlreadySupported, got %v", err)
	}
}

func TestRegistry_AddTokens_LengthMismatch(t *testing.T) {
	r := ledger.NewRegistry()
	r.AddPool(1, ledger.PoolKindSpot, testutil.NewFakeRelay())

	err := r.AddTokens(1, []string{"USDC", "WETH"}, []sdkmath.Int{newi(1000)}, []uint8{6, 18})
	if !errors.Is(err, ledger.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestRegistry_UpdateHardcaps(t *testing.T) {
	r := ledger.NewRegistry()
	r.AddPool(1, ledger.PoolKindSpot, testutil.NewFakeRelay())
	r.AddTokens(1, []string{"USDC"}, []sdkmath.Int{newi(1000)}, []uint8{6})

	if err := r.UpdateHardcaps(1, []string{"USDC"}, []sdkmath.Int{newi(5000)}); err != nil {
		t.Fatalf("UpdateHardcaps failed: %v", err)
	}

	pool, _ := r.Pool(1)
	if !pool.Tokens["USDC"].Hardcap.Equal(newi(5000)) {
		t.Errorf("hardcap not updated: %s", pool.Tokens["USDC"].Hardcap)
	}
}

func TestRegistry_UpdateHardcaps_LengthMismatch(t *testing.T) {
	r := ledger.NewRegistry()
	r.AddPool(1, ledger.PoolKindSpot, testutil.NewFakeRelay())

	err := r.UpdateHardcaps(1, []string{"USDC"}, nil)
	if !errors.Is(err, ledger.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestRegistry_BindInstrument_Rebind(t *testing.T) {
	r := ledger.NewRegistry()
	r.BindInstrument("USDC", 10)
	r.BindInstrument("WETH", 11)

	// Rebinding USDC to 11 must clear both old associations.
	r.BindInstrument("USDC", 11)

	id, err := r.InstrumentFor("USDC")
	if err != nil || id != 11 {
		t.Fatalf("InstrumentFor(USDC) = %d, %v; want 11", id, err)
	}
	if _, err := r.InstrumentFor("WETH"); !errors.Is(err, ledger.ErrUnknownInstrument) {
		t.Errorf("WETH should have lost its binding, got %v", err)
	}
	if token, ok := r.TokenFor(10); ok {
		t.Errorf("instrument 10 should be unbound, got %s", token)
	}
}

func TestRegistry_BindInstrument_UpdatesPoolLedgers(t *testing.T) {
	r := ledger.NewRegistry()
	r.AddPool(1, ledger.PoolKindSpot, testutil.NewFakeRelay())
	r.BindInstrument("USDC", 10)
	r.AddTokens(1, []string{"USDC"}, []sdkmath.Int{newi(1000)}, []uint8{6})

	r.BindInstrument("USDC", 42)

	pool, _ := r.Pool(1)
	if pool.Tokens["USDC"].Instrument != 42 {
		t.Errorf("token ledger instrument not rebound: %d", pool.Tokens["USDC"].Instrument)
	}
}

// ============================================================================
// Test: TokenLedger
// ============================================================================

func TestTokenLedger_Credit(t *testing.T) {
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(1000))
	user := uuid.New()

	if err := tl.Credit(user, newi(400)); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if !tl.Active.Equal(newi(400)) || !tl.ActiveOf(user).Equal(newi(400)) {
		t.Errorf("balances wrong: active=%s user=%s", tl.Active, tl.ActiveOf(user))
	}
}

func TestTokenLedger_Credit_HardcapReached(t *testing.T) {
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(1000))
	user := uuid.New()
	tl.Credit(user, newi(900))

	err := tl.Credit(user, newi(200))
	if !errors.Is(err, ledger.ErrHardcapReached) {
		t.Fatalf("expected ErrHardcapReached, got %v", err)
	}
	// No partial mutation on failure.
	if !tl.Active.Equal(newi(900)) {
		t.Errorf("active mutated on failed credit: %s", tl.Active)
	}
}

func TestTokenLedger_SettleWithdrawal(t *testing.T) {
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(100000))
	user := uuid.New()
	tl.Credit(user, newi(1000))

	// Request 1000 shares, venue releases 950 (loss), fee 10.
	if err := tl.SettleWithdrawal(user, newi(1000), newi(950), newi(10)); err != nil {
		t.Fatalf("SettleWithdrawal failed: %v", err)
	}

	if !tl.Active.IsZero() || !tl.ActiveOf(user).IsZero() {
		t.Errorf("active not drained: active=%s user=%s", tl.Active, tl.ActiveOf(user))
	}
	if !tl.PendingOf(user).Equal(newi(940)) {
		t.Errorf("pending = %s, want 940", tl.PendingOf(user))
	}
	if !tl.FeeOf(user).Equal(newi(10)) {
		t.Errorf("fee = %s, want 10", tl.FeeOf(user))
	}
}

func TestTokenLedger_SettleWithdrawal_InsufficientShares(t *testing.T) {
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(100000))
	user := uuid.New()
	tl.Credit(user, newi(100))

	err := tl.SettleWithdrawal(user, newi(200), newi(200), newi(1))
	if !errors.Is(err, ledger.ErrInsufficientShares) {
		t.Errorf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestTokenLedger_TakeClaim_FeeFirst(t *testing.T) {
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(100000))
	user := uuid.New()
	tl.Credit(user, newi(1000))
	tl.SettleWithdrawal(user, newi(1000), newi(1000), newi(10))

	// Only 5 units arrived at the relay: the fee is drained first.
	feePart, userPart := tl.TakeClaim(user, newi(5))
	if !feePart.Equal(newi(5)) || !userPart.IsZero() {
		t.Errorf("partial claim split = fee %s / user %s, want 5 / 0", feePart, userPart)
	}

	// The rest arrives.
	feePart, userPart = tl.TakeClaim(user, newi(10000))
	if !feePart.Equal(newi(5)) || !userPart.Equal(newi(990)) {
		t.Errorf("final claim split = fee %s / user %s, want 5 / 990", feePart, userPart)
	}
}

func TestTokenLedger_TakeClaim_Idempotent(t *testing.T) {
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(100000))
	user := uuid.New()
	tl.Credit(user, newi(100))
	tl.SettleWithdrawal(user, newi(100), newi(100), newi(2))

	tl.TakeClaim(user, newi(10000))
	feePart, userPart := tl.TakeClaim(user, newi(10000))
	if !feePart.IsZero() || !userPart.IsZero() {
		t.Errorf("second claim should be zero, got fee %s / user %s", feePart, userPart)
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestValidator_Solvency(t *testing.T) {
	v := ledger.NewInvariantValidator()
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(100000))
	u1, u2 := uuid.New(), uuid.New()
	tl.Credit(u1, newi(100))
	tl.Credit(u2, newi(250))

	if err := v.CheckAll(tl); err != nil {
		t.Fatalf("CheckAll on consistent ledger: %v", err)
	}

	// Corrupt the aggregate directly.
	tl.Active = tl.Active.Add(newi(1))
	if err := v.CheckSolvency(tl); err == nil {
		t.Error("CheckSolvency should fail on corrupted aggregate")
	}
}

func TestValidator_NonNegative(t *testing.T) {
	v := ledger.NewInvariantValidator()
	tl := ledger.NewTokenLedger("USDC", 6, 10, newi(100000))
	tl.UserPending[uuid.New()] = newi(-1)

	if err := v.CheckNonNegative(tl); err == nil {
		t.Error("CheckNonNegative should fail on negative pending")
	}
}
