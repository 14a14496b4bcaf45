package testutil

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"vaultledger/internal/venue"
)

// FakeRelay is an in-memory RelayChannel for tests. It records every
// submission and claim, and serves balances from a settable map.
type FakeRelay struct {
	Operator uuid.UUID
	Account  uuid.UUID

	Submitted  [][]byte
	Claims     []ClaimCall
	Authorized []string
	Linked     bool

	Balances map[string]sdkmath.Int

	// SubmitErr, when set, fails the next Submit.
	SubmitErr error
	// ClaimErr, when set, fails the next Claim.
	ClaimErr error
}

type ClaimCall struct {
	Token  string
	Amount sdkmath.Int
}

func NewFakeRelay() *FakeRelay {
	return &FakeRelay{
		Operator: uuid.New(),
		Account:  uuid.New(),
		Balances: make(map[string]sdkmath.Int),
	}
}

func (r *FakeRelay) Submit(_ context.Context, encoded []byte) error {
	if r.SubmitErr != nil {
		err := r.SubmitErr
		r.SubmitErr = nil
		return err
	}
	r.Submitted = append(r.Submitted, encoded)
	return nil
}

func (r *FakeRelay) Claim(_ context.Context, token string, amount sdkmath.Int) error {
	if r.ClaimErr != nil {
		err := r.ClaimErr
		r.ClaimErr = nil
		return err
	}
	have := r.balance(token)
	if have.LT(amount) {
		return fmt.Errorf("relay balance %s < claim %s for %s", have, amount, token)
	}
	r.Balances[token] = have.Sub(amount)
	r.Claims = append(r.Claims, ClaimCall{Token: token, Amount: amount})
	return nil
}

func (r *FakeRelay) AuthorizeSpender(_ context.Context, token string) error {
	r.Authorized = append(r.Authorized, token)
	return nil
}

func (r *FakeRelay) Link(_ context.Context) error {
	r.Linked = true
	return nil
}

func (r *FakeRelay) BalanceOf(_ context.Context, token string) (sdkmath.Int, error) {
	return r.balance(token), nil
}

func (r *FakeRelay) SetBalance(token string, amount sdkmath.Int) {
	r.Balances[token] = amount
}

func (r *FakeRelay) balance(token string) sdkmath.Int {
	if v, ok := r.Balances[token]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (r *FakeRelay) ExternalOperator() uuid.UUID { return r.Operator }
func (r *FakeRelay) VenueAccount() uuid.UUID     { return r.Account }

// FakeDialer returns a fixed set of relays by pool id.
type FakeDialer struct {
	Relays map[uint64]*FakeRelay
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Relays: make(map[uint64]*FakeRelay)}
}

func (d *FakeDialer) Open(_ context.Context, poolID uint64) (venue.RelayChannel, error) {
	relay, ok := d.Relays[poolID]
	if !ok {
		relay = NewFakeRelay()
		d.Relays[poolID] = relay
	}
	return relay, nil
}

// FakeOracle serves prices, raw balances and a backlog from settable state.
type FakeOracle struct {
	Prices      map[uint32]sdkmath.LegacyDec
	RawBalances map[string]sdkmath.LegacyDec // key: account/instrument
	Backlog     venue.BacklogView
}

func NewFakeOracle() *FakeOracle {
	return &FakeOracle{
		Prices:      make(map[uint32]sdkmath.LegacyDec),
		RawBalances: make(map[string]sdkmath.LegacyDec),
	}
}

func rawKey(account uuid.UUID, instrument uint32) string {
	return fmt.Sprintf("%s/%d", account, instrument)
}

func (o *FakeOracle) SetPrice(instrument uint32, price sdkmath.LegacyDec) {
	o.Prices[instrument] = price
}

func (o *FakeOracle) SetRawBalance(account uuid.UUID, instrument uint32, balance sdkmath.LegacyDec) {
	o.RawBalances[rawKey(account, instrument)] = balance
}

func (o *FakeOracle) Price(_ context.Context, instrument uint32) (sdkmath.LegacyDec, error) {
	price, ok := o.Prices[instrument]
	if !ok {
		return sdkmath.LegacyDec{}, fmt.Errorf("no price for instrument %d", instrument)
	}
	return price, nil
}

func (o *FakeOracle) RawBalance(_ context.Context, account uuid.UUID, instrument uint32) (sdkmath.LegacyDec, error) {
	if balance, ok := o.RawBalances[rawKey(account, instrument)]; ok {
		return balance, nil
	}
	return sdkmath.LegacyZeroDec(), nil
}

func (o *FakeOracle) PendingBacklog(_ context.Context) (*venue.BacklogView, error) {
	view := o.Backlog
	return &view, nil
}

// FakeAsset is an in-memory fungible asset.
type FakeAsset struct {
	Dec      uint8
	Balances map[uuid.UUID]sdkmath.Int
}

func NewFakeAsset(decimals uint8) *FakeAsset {
	return &FakeAsset{
		Dec:      decimals,
		Balances: make(map[uuid.UUID]sdkmath.Int),
	}
}

func (a *FakeAsset) Mint(account uuid.UUID, amount sdkmath.Int) {
	a.Balances[account] = a.balance(account).Add(amount)
}

func (a *FakeAsset) BalanceOf(account uuid.UUID) sdkmath.Int {
	return a.balance(account)
}

func (a *FakeAsset) TransferFrom(_ context.Context, owner, to uuid.UUID, amount sdkmath.Int) error {
	return a.move(owner, to, amount)
}

func (a *FakeAsset) Transfer(_ context.Context, to uuid.UUID, amount sdkmath.Int) error {
	// The ledger's own account is the implicit sender; tests mint to it first.
	return a.move(LedgerAccount, to, amount)
}

func (a *FakeAsset) Approve(_ context.Context, _ uuid.UUID, _ sdkmath.Int) error {
	return nil
}

func (a *FakeAsset) Decimals() uint8 { return a.Dec }

func (a *FakeAsset) move(from, to uuid.UUID, amount sdkmath.Int) error {
	have := a.balance(from)
	if have.LT(amount) {
		return fmt.Errorf("insufficient balance: %s < %s", have, amount)
	}
	a.Balances[from] = have.Sub(amount)
	a.Balances[to] = a.balance(to).Add(amount)
	return nil
}

func (a *FakeAsset) balance(account uuid.UUID) sdkmath.Int {
	if v, ok := a.Balances[account]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// LedgerAccount is the identity the ledger transfers from in tests.
var LedgerAccount = uuid.MustParse("00000000-0000-0000-0000-000000001ed9")

// FakeAssets resolves symbols to FakeAssets.
type FakeAssets struct {
	ByToken map[string]*FakeAsset
}

func NewFakeAssets() *FakeAssets {
	return &FakeAssets{ByToken: make(map[string]*FakeAsset)}
}

func (fa *FakeAssets) Add(token string, decimals uint8) *FakeAsset {
	asset := NewFakeAsset(decimals)
	fa.ByToken[token] = asset
	return asset
}

func (fa *FakeAssets) Resolve(token string) (venue.Asset, bool) {
	asset, ok := fa.ByToken[token]
	return asset, ok
}
