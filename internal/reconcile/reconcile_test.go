package reconcile

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/testutil"
	"vaultledger/internal/venue"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

const inst = uint32(7)

func newOracle(account uuid.UUID, raw string, entries ...venue.BacklogEntry) *testutil.FakeOracle {
	o := testutil.NewFakeOracle()
	o.SetRawBalance(account, inst, dec(raw))
	o.Backlog = venue.BacklogView{
		LastApplied: 10,
		Tail:        10 + uint64(len(entries)),
		Entries:     entries,
	}
	return o
}

// ============================================================
// Effective balance
// ============================================================

func TestEffectiveBalanceNoBacklog(t *testing.T) {
	account := uuid.New()
	r := New(newOracle(account, "100"), 0)

	got, err := r.EffectiveBalance(context.Background(), account, inst, 6)
	if err != nil {
		t.Fatalf("EffectiveBalance: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(100_000_000)) {
		t.Fatalf("balance = %s, want 100000000", got)
	}
}

func TestEffectiveBalanceNetsBacklog(t *testing.T) {
	account := uuid.New()
	r := New(newOracle(account, "100",
		venue.BacklogEntry{Sender: account, Instrument: inst, Kind: venue.BacklogDeposit, Amount: dec("30")},
		venue.BacklogEntry{Sender: account, Instrument: inst, Kind: venue.BacklogWithdrawal, Amount: dec("10")},
	), 0)

	got, err := r.EffectiveBalance(context.Background(), account, inst, 6)
	if err != nil {
		t.Fatalf("EffectiveBalance: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(120_000_000)) {
		t.Fatalf("balance = %s, want 120000000", got)
	}
}

func TestEffectiveBalanceIgnoresOtherTraffic(t *testing.T) {
	account := uuid.New()
	other := uuid.New()
	r := New(newOracle(account, "100",
		venue.BacklogEntry{Sender: other, Instrument: inst, Kind: venue.BacklogDeposit, Amount: dec("500")},
		venue.BacklogEntry{Sender: account, Instrument: inst + 1, Kind: venue.BacklogDeposit, Amount: dec("500")},
	), 0)

	got, err := r.EffectiveBalance(context.Background(), account, inst, 6)
	if err != nil {
		t.Fatalf("EffectiveBalance: %v", err)
	}
	if !got.Equal(sdkmath.NewInt(100_000_000)) {
		t.Fatalf("balance = %s, want 100000000 (foreign entries must not count)", got)
	}
}

func TestEffectiveBalanceRoundingDirections(t *testing.T) {
	account := uuid.New()
	// Raw rounds up, pending deposit rounds down, pending withdrawal rounds
	// up. With 0 token decimals every fractional venue value is split.
	r := New(newOracle(account, "10.4",
		venue.BacklogEntry{Sender: account, Instrument: inst, Kind: venue.BacklogDeposit, Amount: dec("2.9")},
		venue.BacklogEntry{Sender: account, Instrument: inst, Kind: venue.BacklogWithdrawal, Amount: dec("1.1")},
	), 0)

	got, err := r.EffectiveBalance(context.Background(), account, inst, 0)
	if err != nil {
		t.Fatalf("EffectiveBalance: %v", err)
	}
	// ceil(10.4) + floor(2.9) - ceil(1.1) = 11 + 2 - 2 = 11
	if !got.Equal(sdkmath.NewInt(11)) {
		t.Fatalf("balance = %s, want 11", got)
	}
}

func TestEffectiveBalanceClampsAtZero(t *testing.T) {
	account := uuid.New()
	r := New(newOracle(account, "5",
		venue.BacklogEntry{Sender: account, Instrument: inst, Kind: venue.BacklogWithdrawal, Amount: dec("9")},
	), 0)

	got, err := r.EffectiveBalance(context.Background(), account, inst, 6)
	if err != nil {
		t.Fatalf("EffectiveBalance: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("balance = %s, want 0", got)
	}
}

func TestEffectiveBalanceBacklogTooLarge(t *testing.T) {
	account := uuid.New()
	entries := make([]venue.BacklogEntry, 3)
	for i := range entries {
		entries[i] = venue.BacklogEntry{Sender: account, Instrument: inst, Kind: venue.BacklogDeposit, Amount: dec("1")}
	}
	r := New(newOracle(account, "5", entries...), 2)

	_, err := r.EffectiveBalance(context.Background(), account, inst, 6)
	if !errors.Is(err, ErrBacklogTooLarge) {
		t.Fatalf("expected ErrBacklogTooLarge, got %v", err)
	}
}
