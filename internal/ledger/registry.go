package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"vaultledger/internal/venue"
)

// Registry holds all pools plus the bidirectional token/instrument binding.
// Not thread-safe; callers serialize access (the engine holds its lock across
// every mutating operation).
type Registry struct {
	pools             map[uint64]*Pool
	instrumentByToken map[string]uint32
	tokenByInstrument map[uint32]string
}

func NewRegistry() *Registry {
	return &Registry{
		pools:             make(map[uint64]*Pool),
		instrumentByToken: make(map[string]uint32),
		tokenByInstrument: make(map[uint32]string),
	}
}

// AddPool binds a new pool id to a relay channel. Kind and relay are
// immutable thereafter.
func (r *Registry) AddPool(id uint64, kind PoolKind, relay venue.RelayChannel) (*Pool, error) {
	if _, exists := r.pools[id]; exists {
		return nil, fmt.Errorf("%w: id=%d", ErrDuplicatePool, id)
	}

	pool := &Pool{
		ID:     id,
		Kind:   kind,
		Relay:  relay,
		Tokens: make(map[string]*TokenLedger),
	}
	r.pools[id] = pool
	return pool, nil
}

// Pool returns the pool for an id.
func (r *Registry) Pool(id uint64) (*Pool, error) {
	pool, ok := r.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrUnknownPool, id)
	}
	return pool, nil
}

// Pools returns all pools, for snapshots and projections.
func (r *Registry) Pools() map[uint64]*Pool {
	return r.pools
}

// AddTokens registers tokens to a pool. Tokens are added, never removed.
// Decimals above the venue's fixed-point precision cannot be represented on
// the venue side and are rejected outright.
func (r *Registry) AddTokens(poolID uint64, tokens []string, hardcaps []sdkmath.Int, decimals []uint8) error {
	if len(tokens) != len(hardcaps) || len(tokens) != len(decimals) {
		return fmt.Errorf("%w: tokens=%d hardcaps=%d decimals=%d",
			ErrLengthMismatch, len(tokens), len(hardcaps), len(decimals))
	}

	pool, err := r.Pool(poolID)
	if err != nil {
		return err
	}

	// Validate the whole batch before mutating anything.
	for i, token := range tokens {
		if decimals[i] > venue.Decimals {
			return fmt.Errorf("%w: token=%s decimals=%d", ErrUnsupportedDecimals, token, decimals[i])
		}
		if existing, ok := pool.Tokens[token]; ok && existing.IsActive {
			return fmt.Errorf("%w: pool=%d token=%s", ErrAlreadySupported, poolID, token)
		}
	}

	for i, token := range tokens {
		instrument := r.instrumentByToken[token]
		pool.Tokens[token] = NewTokenLedger(token, decimals[i], instrument, hardcaps[i])
	}
	return nil
}

// UpdateHardcaps adjusts the active-amount cap per token. Raising a cap
// re-opens deposits; lowering it below the current active amount only blocks
// further deposits, it never forces exits.
func (r *Registry) UpdateHardcaps(poolID uint64, tokens []string, hardcaps []sdkmath.Int) error {
	if len(tokens) != len(hardcaps) {
		return fmt.Errorf("%w: tokens=%d hardcaps=%d", ErrLengthMismatch, len(tokens), len(hardcaps))
	}

	pool, err := r.Pool(poolID)
	if err != nil {
		return err
	}

	for _, token := range tokens {
		if _, ok := pool.Tokens[token]; !ok {
			return fmt.Errorf("%w: pool=%d token=%s", ErrUnknownToken, poolID, token)
		}
	}

	for i, token := range tokens {
		pool.Tokens[token].Hardcap = hardcaps[i]
	}
	return nil
}

// BindInstrument rebinds the token/venue-instrument association in both
// directions, clearing any previous binding on either side.
func (r *Registry) BindInstrument(token string, instrument uint32) {
	if old, ok := r.instrumentByToken[token]; ok {
		delete(r.tokenByInstrument, old)
	}
	if old, ok := r.tokenByInstrument[instrument]; ok {
		delete(r.instrumentByToken, old)
	}

	r.instrumentByToken[token] = instrument
	r.tokenByInstrument[instrument] = token

	// Keep per-pool ledgers in sync so reconciliation matches on the
	// current binding, not the one at registration time.
	for _, pool := range r.pools {
		if tl, ok := pool.Tokens[token]; ok {
			tl.Instrument = instrument
		}
	}
}

// InstrumentFor returns the venue instrument bound to a token.
func (r *Registry) InstrumentFor(token string) (uint32, error) {
	id, ok := r.instrumentByToken[token]
	if !ok {
		return 0, fmt.Errorf("%w: token=%s", ErrUnknownInstrument, token)
	}
	return id, nil
}

// TokenFor returns the token bound to a venue instrument.
func (r *Registry) TokenFor(instrument uint32) (string, bool) {
	token, ok := r.tokenByInstrument[instrument]
	return token, ok
}
