package queue

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// ============================================================
// FIFO ordering and cursor
// ============================================================

func TestAppendAssignsSequentialIDs(t *testing.T) {
	q := New()
	now := time.Now()
	for i := 1; i <= 3; i++ {
		id := q.Append(1, uuid.New(), KindDepositPerp, nil, now)
		if id != uint64(i) {
			t.Fatalf("entry %d assigned ID %d", i, id)
		}
	}
	if q.Len() != 3 || q.PendingLen() != 3 || q.UpTo() != 0 {
		t.Fatalf("len=%d pending=%d upTo=%d", q.Len(), q.PendingLen(), q.UpTo())
	}
}

func TestAdvanceInOrder(t *testing.T) {
	q := New()
	now := time.Now()
	q.Append(1, uuid.New(), KindDepositPerp, nil, now)
	q.Append(1, uuid.New(), KindWithdrawPerp, nil, now)

	e, err := q.Advance(1, StateProcessed)
	if err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	if e.State != StateProcessed {
		t.Fatalf("entry 1 state = %s", e.State)
	}
	if q.UpTo() != 1 {
		t.Fatalf("upTo = %d, want 1", q.UpTo())
	}

	e, err = q.Advance(2, StateSkipped)
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if e.State != StateSkipped {
		t.Fatalf("entry 2 state = %s", e.State)
	}
	if q.PendingLen() != 0 {
		t.Fatalf("pending = %d, want 0", q.PendingLen())
	}
}

func TestAdvanceRejectsOutOfOrder(t *testing.T) {
	q := New()
	now := time.Now()
	q.Append(1, uuid.New(), KindDepositPerp, nil, now)
	q.Append(1, uuid.New(), KindDepositPerp, nil, now)

	if _, err := q.Advance(2, StateProcessed); !errors.Is(err, ErrStaleEntry) {
		t.Fatalf("skipping ahead: expected ErrStaleEntry, got %v", err)
	}
	if _, err := q.Advance(0, StateProcessed); !errors.Is(err, ErrStaleEntry) {
		t.Fatalf("entry 0: expected ErrStaleEntry, got %v", err)
	}

	if _, err := q.Advance(1, StateProcessed); err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	// Replaying an already settled ID is stale, not empty, while entries remain.
	if _, err := q.Advance(1, StateProcessed); !errors.Is(err, ErrStaleEntry) {
		t.Fatalf("replay: expected ErrStaleEntry, got %v", err)
	}
}

func TestAdvanceEmptyQueue(t *testing.T) {
	q := New()
	if _, err := q.Advance(1, StateProcessed); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected ErrEmptyQueue, got %v", err)
	}
}

func TestHeadDoesNotConsume(t *testing.T) {
	q := New()
	q.Append(1, uuid.New(), KindDepositPerp, nil, time.Now())

	for i := 0; i < 2; i++ {
		head, err := q.Head()
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head.ID != 1 {
			t.Fatalf("head ID = %d", head.ID)
		}
	}
	if q.UpTo() != 0 {
		t.Fatalf("head must not move the cursor")
	}
}

func TestEntryLookup(t *testing.T) {
	q := New()
	sender := uuid.New()
	q.Append(4, sender, KindWithdrawSpot, []byte(`{}`), time.Now())
	q.Advance(1, StateProcessed)

	e, ok := q.Entry(1)
	if !ok || e.Sender != sender || e.State != StateProcessed {
		t.Fatalf("settled entry must stay addressable: ok=%v entry=%+v", ok, e)
	}
	if _, ok := q.Entry(0); ok {
		t.Fatal("entry 0 must not resolve")
	}
	if _, ok := q.Entry(2); ok {
		t.Fatal("entry past the tail must not resolve")
	}
}

func TestRestoreResumesCursor(t *testing.T) {
	q := New()
	now := time.Now()
	q.Append(1, uuid.New(), KindDepositPerp, nil, now)
	q.Append(1, uuid.New(), KindDepositPerp, nil, now)
	q.Advance(1, StateProcessed)

	restored := Restore(q.Entries(), q.UpTo())
	head, err := restored.Head()
	if err != nil {
		t.Fatalf("head after restore: %v", err)
	}
	if head.ID != 2 {
		t.Fatalf("restored head = %d, want 2", head.ID)
	}
	if restored.Append(1, uuid.New(), KindDepositPerp, nil, now) != 3 {
		t.Fatal("restored queue must continue the ID sequence")
	}
}

// ============================================================
// Intent and response encoding
// ============================================================

func TestIntentRoundTrip(t *testing.T) {
	intent := DepositSpotIntent{
		BaseToken:   "WETH",
		QuoteToken:  "USDC",
		BaseAmount:  sdkmath.NewInt(1_000_000),
		QuoteAmount: sdkmath.NewInt(3_000_000_000),
		MinQuote:    sdkmath.NewInt(2_970_000_000),
		MaxQuote:    sdkmath.NewInt(3_030_000_000),
		Receiver:    uuid.New(),
	}
	payload, err := EncodeIntent(intent)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got DepositSpotIntent
	if err := DecodeIntent(payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.QuoteAmount.Equal(intent.QuoteAmount) || got.Receiver != intent.Receiver {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDecodeResponseEmpty(t *testing.T) {
	var resp WithdrawResponse
	if err := DecodeResponse(nil, &resp); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("nil body: expected ErrEmptyResponse, got %v", err)
	}
	if err := DecodeResponse([]byte{}, &resp); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("empty body: expected ErrEmptyResponse, got %v", err)
	}
}

func TestWithdrawResponseOptionalRelease(t *testing.T) {
	var bare WithdrawResponse
	if err := DecodeResponse([]byte(`{}`), &bare); err != nil {
		t.Fatalf("decode bare: %v", err)
	}
	if bare.Released != nil {
		t.Fatal("absent released must decode as nil")
	}

	var capped WithdrawResponse
	if err := DecodeResponse([]byte(`{"released":"250"}`), &capped); err != nil {
		t.Fatalf("decode capped: %v", err)
	}
	if capped.Released == nil || !capped.Released.Equal(sdkmath.NewInt(250)) {
		t.Fatalf("released = %v, want 250", capped.Released)
	}
}
