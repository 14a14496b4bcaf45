package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vaultledger/internal/event"
	"vaultledger/internal/ledger"
	"vaultledger/internal/observability"
	"vaultledger/internal/pricing"
	"vaultledger/internal/queue"
	"vaultledger/internal/reconcile"
	"vaultledger/internal/venue"
)

// Config holds the engine's fixed parameters.
type Config struct {
	// VenueFee is the venue's flat settlement fee per request, expressed in
	// the venue's fee currency, fixed-point(18). Converted into token units
	// per request via the token's price.
	VenueFee sdkmath.LegacyDec

	// MaxBacklogScan bounds the venue backlog scan during reconciliation.
	MaxBacklogScan int

	// DedupCapacity sizes the command dedup LRU.
	DedupCapacity int
}

// Output is what the engine emits per applied event: the envelope for the
// event log plus the decoded payload for projections and publishing.
type Output struct {
	Envelope *event.EventEnvelope
	Event    event.Event
}

// Engine owns every piece of ledger state and serializes all mutating
// operations behind a single lock. Settlement of queued requests is driven
// exclusively by the external operator through Advance; everything the
// engine knows about the venue arrives through the injected capabilities.
type Engine struct {
	mu sync.Mutex

	cfg        Config
	registry   *ledger.Registry
	queue      *queue.Queue
	oracle     venue.Oracle
	assets     venue.Assets
	dialer     venue.RelayDialer
	reconciler *reconcile.Reconciler
	validator  *ledger.InvariantValidator

	hasher      *StateHasher
	idempotency *IdempotencyChecker
	sequence    int64
	revision    uint64

	pauseDeposits    bool
	pauseWithdrawals bool
	pauseClaims      bool

	persistChan    chan<- Output
	projectionChan chan<- Output
	metrics        *observability.Metrics
	log            zerolog.Logger
}

func NewEngine(
	cfg Config,
	oracle venue.Oracle,
	assets venue.Assets,
	dialer venue.RelayDialer,
	persistChan, projectionChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Engine {
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 1_000_000
	}
	return &Engine{
		cfg:            cfg,
		registry:       ledger.NewRegistry(),
		queue:          queue.New(),
		oracle:         oracle,
		assets:         assets,
		dialer:         dialer,
		reconciler:     reconcile.New(oracle, cfg.MaxBacklogScan),
		validator:      ledger.NewInvariantValidator(),
		hasher:         NewStateHasher(),
		idempotency:    NewIdempotencyChecker(cfg.DedupCapacity, dbChecker),
		persistChan:    persistChan,
		projectionChan: projectionChan,
		metrics:        metrics,
		log:            logger,
	}
}

// --- Admin operations ---

// AddPool creates a pool, opens its relay channel, and performs the one-time
// link handshake with the venue. Tokens given here are registered in the
// same call; pass none to register them later through AddPoolTokens.
func (e *Engine) AddPool(ctx context.Context, poolID uint64, kind ledger.PoolKind, tokens []string, hardcaps []sdkmath.Int, decimals []uint8, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	relay, err := e.dialer.Open(ctx, poolID)
	if err != nil {
		return fmt.Errorf("open relay for pool %d: %w", poolID, err)
	}
	if err := relay.Link(ctx); err != nil {
		return fmt.Errorf("link relay for pool %d: %w", poolID, err)
	}

	if _, err := e.registry.AddPool(poolID, kind, relay); err != nil {
		return err
	}

	e.emit(&event.PoolAdded{Pool: poolID, Kind: kind.String()}, at)
	e.applied("add_pool")

	if len(tokens) == 0 {
		return nil
	}
	return e.addPoolTokens(ctx, poolID, tokens, hardcaps, decimals, at)
}

// AddPoolTokens registers tokens to a pool and grants the relay standing
// authorization to move each of them.
func (e *Engine) AddPoolTokens(ctx context.Context, poolID uint64, tokens []string, hardcaps []sdkmath.Int, decimals []uint8, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.addPoolTokens(ctx, poolID, tokens, hardcaps, decimals, at)
}

// addPoolTokens is the locked body shared by AddPool and AddPoolTokens.
func (e *Engine) addPoolTokens(ctx context.Context, poolID uint64, tokens []string, hardcaps []sdkmath.Int, decimals []uint8, at time.Time) error {
	pool, err := e.registry.Pool(poolID)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if _, ok := e.assets.Resolve(token); !ok {
			return fmt.Errorf("%w: token=%s", ledger.ErrUnknownToken, token)
		}
	}

	if err := e.registry.AddTokens(poolID, tokens, hardcaps, decimals); err != nil {
		return err
	}

	for i, token := range tokens {
		if err := pool.Relay.AuthorizeSpender(ctx, token); err != nil {
			return fmt.Errorf("authorize relay for %s: %w", token, err)
		}
		asset, _ := e.assets.Resolve(token)
		if err := asset.Approve(ctx, pool.Relay.VenueAccount(), hardcaps[i]); err != nil {
			return fmt.Errorf("approve relay for %s: %w", token, err)
		}
	}

	e.emit(&event.TokensAdded{Pool: poolID, Tokens: tokens, Hardcaps: hardcaps, Decimals: decimals}, at)
	e.applied("add_pool_tokens")
	return nil
}

// UpdateHardcaps adjusts per-token deposit caps. Lowering a cap below the
// current active amount only blocks further deposits.
func (e *Engine) UpdateHardcaps(poolID uint64, tokens []string, hardcaps []sdkmath.Int, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.registry.UpdateHardcaps(poolID, tokens, hardcaps); err != nil {
		return err
	}

	e.revision++
	e.emit(&event.HardcapUpdated{Pool: poolID, Tokens: tokens, Hardcaps: hardcaps, Revision: e.revision}, at)
	e.applied("update_hardcaps")
	return nil
}

// UpdateInstrumentID rebinds a token to a venue instrument. Both sides of
// any previous binding are cleared.
func (e *Engine) UpdateInstrumentID(token string, instrument uint32, at time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.registry.BindInstrument(token, instrument)

	e.revision++
	e.emit(&event.InstrumentRebound{Token: token, Instrument: instrument, Revision: e.revision}, at)
	e.applied("update_instrument")
	return nil
}

// SetPauses flips the three pause gates. Paused operations reject at the
// door; the settlement queue keeps draining regardless so in-flight
// requests always finish.
func (e *Engine) SetPauses(deposits, withdrawals, claims bool, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pauseDeposits = deposits
	e.pauseWithdrawals = withdrawals
	e.pauseClaims = claims

	e.revision++
	e.emit(&event.PauseChanged{Deposits: deposits, Withdrawals: withdrawals, Claims: claims, Revision: e.revision}, at)
	e.applied("set_pauses")
}

// --- User operations: enqueue ---

type DepositSpotParams struct {
	Sender     uuid.UUID
	PoolID     uint64
	BaseToken  string
	QuoteToken string
	BaseAmount sdkmath.Int
	MinQuote   sdkmath.Int
	MaxQuote   sdkmath.Int
	Receiver   uuid.UUID
}

// DepositSpot charges the settlement fee, pulls both legs of a balanced
// spot deposit into the relay's custody, and queues the settlement request.
// The quote amount is derived from current prices and must land inside the
// caller's slippage bounds.
func (e *Engine) DepositSpot(ctx context.Context, p DepositSpotParams, at time.Time) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pauseDeposits {
		return 0, ErrDepositsPaused
	}
	if p.Receiver == uuid.Nil {
		return 0, ErrNilReceiver
	}
	if !p.BaseAmount.IsPositive() {
		return 0, ErrZeroAmount
	}
	if p.BaseToken == p.QuoteToken {
		return 0, ErrSameToken
	}

	pool, err := e.registry.Pool(p.PoolID)
	if err != nil {
		return 0, err
	}
	if pool.Kind != ledger.PoolKindSpot {
		return 0, fmt.Errorf("%w: pool=%d kind=%s", ledger.ErrWrongPoolKind, p.PoolID, pool.Kind)
	}

	baseTL, err := pool.Token(p.BaseToken)
	if err != nil {
		return 0, err
	}
	quoteTL, err := pool.Token(p.QuoteToken)
	if err != nil {
		return 0, err
	}

	basePrice, quotePrice, err := e.legPrices(ctx, p.BaseToken, p.QuoteToken)
	if err != nil {
		return 0, err
	}

	quoteAmount, err := pricing.BalancedAmount(p.BaseAmount, basePrice, quotePrice, baseTL.Decimals, quoteTL.Decimals)
	if err != nil {
		return 0, err
	}
	if quoteAmount.LT(p.MinQuote) || quoteAmount.GT(p.MaxQuote) {
		return 0, fmt.Errorf("%w: quote=%s bounds=[%s,%s]", ErrSlippageTooHigh, quoteAmount, p.MinQuote, p.MaxQuote)
	}

	fee, err := pricing.SettlementFee(e.cfg.VenueFee, basePrice, baseTL.Decimals)
	if err != nil {
		return 0, err
	}

	if err := e.collectDeposit(ctx, pool, p.Sender, p.BaseToken, fee, map[string]sdkmath.Int{
		p.BaseToken:  p.BaseAmount,
		p.QuoteToken: quoteAmount,
	}); err != nil {
		return 0, err
	}

	payload, err := queue.EncodeIntent(queue.DepositSpotIntent{
		BaseToken:   p.BaseToken,
		QuoteToken:  p.QuoteToken,
		BaseAmount:  p.BaseAmount,
		QuoteAmount: quoteAmount,
		MinQuote:    p.MinQuote,
		MaxQuote:    p.MaxQuote,
		Receiver:    p.Receiver,
	})
	if err != nil {
		return 0, err
	}

	return e.enqueue(ctx, pool, p.Sender, queue.KindDepositSpot, payload, at), nil
}

type DepositPerpParams struct {
	Sender   uuid.UUID
	PoolID   uint64
	Token    string
	Amount   sdkmath.Int
	Receiver uuid.UUID
}

// DepositPerp charges the settlement fee, pulls the deposit into the
// relay's custody, and queues the settlement request.
func (e *Engine) DepositPerp(ctx context.Context, p DepositPerpParams, at time.Time) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pauseDeposits {
		return 0, ErrDepositsPaused
	}
	if p.Receiver == uuid.Nil {
		return 0, ErrNilReceiver
	}
	if !p.Amount.IsPositive() {
		return 0, ErrZeroAmount
	}

	pool, err := e.registry.Pool(p.PoolID)
	if err != nil {
		return 0, err
	}
	if pool.Kind != ledger.PoolKindPerp {
		return 0, fmt.Errorf("%w: pool=%d kind=%s", ledger.ErrWrongPoolKind, p.PoolID, pool.Kind)
	}

	tl, err := pool.Token(p.Token)
	if err != nil {
		return 0, err
	}

	price, err := e.tokenPrice(ctx, p.Token)
	if err != nil {
		return 0, err
	}
	fee, err := pricing.SettlementFee(e.cfg.VenueFee, price, tl.Decimals)
	if err != nil {
		return 0, err
	}

	if err := e.collectDeposit(ctx, pool, p.Sender, p.Token, fee, map[string]sdkmath.Int{p.Token: p.Amount}); err != nil {
		return 0, err
	}

	payload, err := queue.EncodeIntent(queue.DepositPerpIntent{
		Token:    p.Token,
		Amount:   p.Amount,
		Receiver: p.Receiver,
	})
	if err != nil {
		return 0, err
	}

	return e.enqueue(ctx, pool, p.Sender, queue.KindDepositPerp, payload, at), nil
}

type WithdrawSpotParams struct {
	Sender      uuid.UUID
	PoolID      uint64
	BaseToken   string
	QuoteToken  string
	BaseShares  sdkmath.Int
	QuoteShares sdkmath.Int
	Receiver    uuid.UUID
}

// WithdrawSpot queues a withdrawal of both legs of a spot pool position.
// No funds move at enqueue time; the payout is computed at settlement from
// the reconciled venue balance and the fee is carved from the release.
func (e *Engine) WithdrawSpot(ctx context.Context, p WithdrawSpotParams, at time.Time) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pauseWithdrawals {
		return 0, ErrWithdrawalsPaused
	}
	if p.Receiver == uuid.Nil {
		return 0, ErrNilReceiver
	}
	if !p.BaseShares.IsPositive() && !p.QuoteShares.IsPositive() {
		return 0, ErrZeroAmount
	}
	if p.BaseToken == p.QuoteToken {
		return 0, ErrSameToken
	}

	pool, err := e.registry.Pool(p.PoolID)
	if err != nil {
		return 0, err
	}
	if pool.Kind != ledger.PoolKindSpot {
		return 0, fmt.Errorf("%w: pool=%d kind=%s", ledger.ErrWrongPoolKind, p.PoolID, pool.Kind)
	}

	baseTL, err := pool.Token(p.BaseToken)
	if err != nil {
		return 0, err
	}
	quoteTL, err := pool.Token(p.QuoteToken)
	if err != nil {
		return 0, err
	}
	if baseTL.ActiveOf(p.Sender).LT(p.BaseShares) {
		return 0, fmt.Errorf("%w: token=%s", ledger.ErrInsufficientShares, p.BaseToken)
	}
	if quoteTL.ActiveOf(p.Sender).LT(p.QuoteShares) {
		return 0, fmt.Errorf("%w: token=%s", ledger.ErrInsufficientShares, p.QuoteToken)
	}

	payload, err := queue.EncodeIntent(queue.WithdrawSpotIntent{
		BaseToken:   p.BaseToken,
		QuoteToken:  p.QuoteToken,
		BaseShares:  p.BaseShares,
		QuoteShares: p.QuoteShares,
		Receiver:    p.Receiver,
	})
	if err != nil {
		return 0, err
	}

	return e.enqueue(ctx, pool, p.Sender, queue.KindWithdrawSpot, payload, at), nil
}

type WithdrawPerpParams struct {
	Sender   uuid.UUID
	PoolID   uint64
	Token    string
	Shares   sdkmath.Int
	Receiver uuid.UUID
}

// WithdrawPerp queues a withdrawal of active shares from a perp pool.
func (e *Engine) WithdrawPerp(ctx context.Context, p WithdrawPerpParams, at time.Time) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pauseWithdrawals {
		return 0, ErrWithdrawalsPaused
	}
	if p.Receiver == uuid.Nil {
		return 0, ErrNilReceiver
	}
	if !p.Shares.IsPositive() {
		return 0, ErrZeroAmount
	}

	pool, err := e.registry.Pool(p.PoolID)
	if err != nil {
		return 0, err
	}
	if pool.Kind != ledger.PoolKindPerp {
		return 0, fmt.Errorf("%w: pool=%d kind=%s", ledger.ErrWrongPoolKind, p.PoolID, pool.Kind)
	}

	tl, err := pool.Token(p.Token)
	if err != nil {
		return 0, err
	}
	if tl.ActiveOf(p.Sender).LT(p.Shares) {
		return 0, fmt.Errorf("%w: token=%s", ledger.ErrInsufficientShares, p.Token)
	}

	payload, err := queue.EncodeIntent(queue.WithdrawPerpIntent{
		Token:    p.Token,
		Shares:   p.Shares,
		Receiver: p.Receiver,
	})
	if err != nil {
		return 0, err
	}

	return e.enqueue(ctx, pool, p.Sender, queue.KindWithdrawPerp, payload, at), nil
}

// --- Claim ---

type ClaimParams struct {
	PoolID uint64
	Token  string
	User   uuid.UUID
}

// Claim pays out the user's pending and fee balances, capped by what has
// actually arrived at the relay. Fee is drained first; the ledger is
// debited before any external transfer fires, and a failed payout rolls
// the debit back under a compensating event.
func (e *Engine) Claim(ctx context.Context, p ClaimParams, at time.Time) (feePart, userPart sdkmath.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	zero := sdkmath.ZeroInt()
	if e.pauseClaims {
		return zero, zero, ErrClaimsPaused
	}

	pool, err := e.registry.Pool(p.PoolID)
	if err != nil {
		return zero, zero, err
	}
	tl, ok := pool.Tokens[p.Token]
	if !ok {
		return zero, zero, fmt.Errorf("%w: pool=%d token=%s", ledger.ErrUnknownToken, p.PoolID, p.Token)
	}
	asset, ok := e.assets.Resolve(p.Token)
	if !ok {
		return zero, zero, fmt.Errorf("%w: token=%s", ledger.ErrUnknownToken, p.Token)
	}

	available, err := pool.Relay.BalanceOf(ctx, p.Token)
	if err != nil {
		return zero, zero, fmt.Errorf("relay balance of %s: %w", p.Token, err)
	}

	feePart, userPart = tl.TakeClaim(p.User, available)
	total := feePart.Add(userPart)
	if total.IsZero() {
		// A claim with nothing claimable is a benign no-op, second claims
		// in a row included.
		return zero, zero, nil
	}

	e.revision++
	e.emit(&event.Claimed{
		Pool:     p.PoolID,
		Token:    p.Token,
		User:     p.User,
		FeePart:  feePart,
		UserPart: userPart,
		Revision: e.revision,
	}, at)

	// State and event are committed before the external transfers run. A
	// payout failure does not strand the debit: the split goes back into
	// the buckets and a compensating event keeps the log replayable.
	if err := e.payOutClaim(ctx, pool, asset, p.User, p.Token, feePart, userPart); err != nil {
		tl.RevertClaim(p.User, feePart, userPart)
		e.revision++
		e.emit(&event.ClaimReverted{
			Pool:     p.PoolID,
			Token:    p.Token,
			User:     p.User,
			FeePart:  feePart,
			UserPart: userPart,
			Revision: e.revision,
			Reason:   err.Error(),
		}, at)
		e.rejected("claim", "payout_failed")
		return zero, zero, fmt.Errorf("claim payout: %w", err)
	}

	if e.metrics != nil {
		e.metrics.ClaimsTotal.WithLabelValues(p.Token, "fee").Add(floatOf(feePart))
		e.metrics.ClaimsTotal.WithLabelValues(p.Token, "user").Add(floatOf(userPart))
	}
	e.applied("claim")
	return feePart, userPart, nil
}

// payOutClaim pulls the claimed total from the relay, then pays the fee part
// to the external operator and the remainder to the user.
func (e *Engine) payOutClaim(ctx context.Context, pool *ledger.Pool, asset venue.Asset, user uuid.UUID, token string, feePart, userPart sdkmath.Int) error {
	if err := pool.Relay.Claim(ctx, token, feePart.Add(userPart)); err != nil {
		return fmt.Errorf("relay claim: %w", err)
	}
	if feePart.IsPositive() {
		if err := asset.Transfer(ctx, pool.Relay.ExternalOperator(), feePart); err != nil {
			return fmt.Errorf("fee transfer: %w", err)
		}
	}
	if userPart.IsPositive() {
		if err := asset.Transfer(ctx, user, userPart); err != nil {
			return fmt.Errorf("user transfer: %w", err)
		}
	}
	return nil
}

// --- Internal helpers ---

// collectDeposit moves the fee to the external operator and the deposit
// legs into the relay's custody. Fee first: a sender who cannot cover the
// fee never moves principal.
func (e *Engine) collectDeposit(ctx context.Context, pool *ledger.Pool, sender uuid.UUID, feeToken string, fee sdkmath.Int, amounts map[string]sdkmath.Int) error {
	tokens := make([]string, 0, len(amounts))
	for token := range amounts {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	feeAsset, ok := e.assets.Resolve(feeToken)
	if !ok {
		return fmt.Errorf("%w: token=%s", ledger.ErrUnknownToken, feeToken)
	}
	if fee.IsPositive() {
		if err := feeAsset.TransferFrom(ctx, sender, pool.Relay.ExternalOperator(), fee); err != nil {
			return fmt.Errorf("collect fee: %w", err)
		}
	}

	for _, token := range tokens {
		asset, ok := e.assets.Resolve(token)
		if !ok {
			return fmt.Errorf("%w: token=%s", ledger.ErrUnknownToken, token)
		}
		if err := asset.TransferFrom(ctx, sender, pool.Relay.VenueAccount(), amounts[token]); err != nil {
			return fmt.Errorf("collect %s: %w", token, err)
		}
	}
	return nil
}

// enqueue appends the entry, records it in the event log, and forwards the
// intent to the venue. The queue is the source of truth; a failed relay
// submission is logged and counted but does not unwind the entry.
func (e *Engine) enqueue(ctx context.Context, pool *ledger.Pool, sender uuid.UUID, kind queue.EntryKind, payload []byte, at time.Time) uint64 {
	entryID := e.queue.Append(pool.ID, sender, kind, payload, at)

	e.emit(&event.RequestQueued{Entry: entryID, Pool: pool.ID, Sender: sender, Kind: kind.String(), Payload: payload}, at)

	if err := pool.Relay.Submit(ctx, payload); err != nil {
		e.log.Warn().Err(err).Uint64("entry", entryID).Uint64("pool", pool.ID).
			Msg("relay submit failed, entry remains queued")
		if e.metrics != nil {
			e.metrics.RelayErrors.WithLabelValues(fmt.Sprint(pool.ID), "submit").Inc()
		}
	} else if e.metrics != nil {
		e.metrics.RelaySubmits.WithLabelValues(fmt.Sprint(pool.ID), kind.String()).Inc()
	}

	if e.metrics != nil {
		e.metrics.QueueAppended.WithLabelValues(kind.String()).Inc()
		e.metrics.QueueDepth.Set(float64(e.queue.PendingLen()))
	}
	e.applied(kind.String())
	return entryID
}

func (e *Engine) tokenPrice(ctx context.Context, token string) (sdkmath.LegacyDec, error) {
	instrument, err := e.registry.InstrumentFor(token)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	price, err := e.oracle.Price(ctx, instrument)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("price for %s: %w", token, err)
	}
	return price, nil
}

func (e *Engine) legPrices(ctx context.Context, baseToken, quoteToken string) (base, quote sdkmath.LegacyDec, err error) {
	base, err = e.tokenPrice(ctx, baseToken)
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	quote, err = e.tokenPrice(ctx, quoteToken)
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	return base, quote, nil
}

// emit wraps an event in an envelope, chains the state hash, and pushes it
// to the persistence and projection channels. Persistence is a blocking
// send; projections drop on a full channel and catch up from the log.
func (e *Engine) emit(evt event.Event, at time.Time) {
	payload, err := json.Marshal(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: unmarshalable event %T: %v", evt, err))
	}

	prev := e.hasher.GetPrevHash()
	start := time.Now()
	hash := e.hasher.ComputeHash(e.sequence, e.stateDigest())
	if e.metrics != nil {
		e.metrics.StateHashDur.Observe(time.Since(start).Seconds())
	}

	output := Output{
		Envelope: &event.EventEnvelope{
			Sequence:       e.sequence,
			IdempotencyKey: evt.IdempotencyKey(),
			EventType:      evt.EventType(),
			PoolID:         evt.PoolID(),
			Timestamp:      at,
			EntryID:        evt.EntryID(),
			Payload:        payload,
			StateHash:      hash,
			PrevHash:       prev,
		},
		Event: evt,
	}
	e.sequence++

	// Blocking send. The engine stalls until the persistence worker
	// drains. No event is ever lost.
	e.persistChan <- output

	select {
	case e.projectionChan <- output:
	default:
		if e.metrics != nil {
			e.metrics.ProjectionDrops.WithLabelValues("all").Inc()
		}
	}

	if e.metrics != nil {
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}
}

// stateDigest builds canonical bytes over every token ledger, the queue
// cursor, and the pause gates. Iteration order is fixed by sorting.
func (e *Engine) stateDigest() []byte {
	pools := e.registry.Pools()
	poolIDs := make([]uint64, 0, len(pools))
	for id := range pools {
		poolIDs = append(poolIDs, id)
	}
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })

	digest := make([]byte, 0, 256)
	var buf [8]byte

	for _, id := range poolIDs {
		pool := pools[id]
		binary.LittleEndian.PutUint64(buf[:], id)
		digest = append(digest, buf[:]...)

		tokens := make([]string, 0, len(pool.Tokens))
		for token := range pool.Tokens {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)

		for _, token := range tokens {
			tl := pool.Tokens[token]
			digest = append(digest, byte(len(token)))
			digest = append(digest, token...)
			active := tl.Active.String()
			digest = append(digest, byte(len(active)))
			digest = append(digest, active...)
		}
	}

	binary.LittleEndian.PutUint64(buf[:], e.queue.UpTo())
	digest = append(digest, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], uint64(e.queue.Len()))
	digest = append(digest, buf[:]...)

	var gates byte
	if e.pauseDeposits {
		gates |= 1
	}
	if e.pauseWithdrawals {
		gates |= 2
	}
	if e.pauseClaims {
		gates |= 4
	}
	digest = append(digest, gates)

	return digest
}

func (e *Engine) applied(op string) {
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
	}
}

func floatOf(v sdkmath.Int) float64 {
	f, _ := sdkmath.LegacyNewDecFromInt(v).Float64()
	return f
}

// --- Read-side accessors ---

// Sequence returns the next event sequence to assign.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}

// QueueStatus reports the cursor and pending depth.
func (e *Engine) QueueStatus() (upTo uint64, pending int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.UpTo(), e.queue.PendingLen()
}

// BalancesOf reports a user's three ledger buckets for a pool token.
func (e *Engine) BalancesOf(poolID uint64, token string, user uuid.UUID) (active, pending, fee sdkmath.Int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	zero := sdkmath.ZeroInt()
	pool, err := e.registry.Pool(poolID)
	if err != nil {
		return zero, zero, zero, err
	}
	tl, ok := pool.Tokens[token]
	if !ok {
		return zero, zero, zero, fmt.Errorf("%w: pool=%d token=%s", ledger.ErrUnknownToken, poolID, token)
	}
	return tl.ActiveOf(user), tl.PendingOf(user), tl.FeeOf(user), nil
}
