package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	oraclePriceBucket = "VAULT_ORACLE_PRICES"
	oracleStateBucket = "VAULT_ORACLE_STATE"
	relayIdentBucket  = "VAULT_RELAY_IDENTITIES"
)

// NATSOracle reads venue prices, point balances, and the unsettled backlog
// from JetStream key-value buckets the venue bridge keeps current.
type NATSOracle struct {
	prices jetstream.KeyValue
	state  jetstream.KeyValue
}

func NewNATSOracle(ctx context.Context, js jetstream.JetStream) (*NATSOracle, error) {
	prices, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: oraclePriceBucket})
	if err != nil {
		return nil, fmt.Errorf("open price bucket: %w", err)
	}
	state, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: oracleStateBucket})
	if err != nil {
		return nil, fmt.Errorf("open state bucket: %w", err)
	}
	return &NATSOracle{prices: prices, state: state}, nil
}

func (o *NATSOracle) Price(ctx context.Context, instrument uint32) (sdkmath.LegacyDec, error) {
	key := fmt.Sprintf("price.%d", instrument)
	entry, err := o.prices.Get(ctx, key)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("read price %s: %w", key, err)
	}
	price, err := sdkmath.LegacyNewDecFromStr(string(entry.Value()))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("malformed price %s: %q", key, entry.Value())
	}
	return price, nil
}

func (o *NATSOracle) RawBalance(ctx context.Context, account uuid.UUID, instrument uint32) (sdkmath.LegacyDec, error) {
	key := fmt.Sprintf("balance.%s.%d", account, instrument)
	entry, err := o.state.Get(ctx, key)
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return sdkmath.LegacyZeroDec(), nil
		}
		return sdkmath.LegacyDec{}, fmt.Errorf("read balance %s: %w", key, err)
	}
	balance, err := sdkmath.LegacyNewDecFromStr(string(entry.Value()))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("malformed balance %s: %q", key, entry.Value())
	}
	return balance, nil
}

// backlogDoc is the bridge's wire form of the venue's unsettled tail.
type backlogDoc struct {
	LastApplied uint64 `json:"last_applied"`
	Tail        uint64 `json:"tail"`
	Entries     []struct {
		Sender     uuid.UUID `json:"sender"`
		Instrument uint32    `json:"instrument"`
		Kind       int8      `json:"kind"`
		Amount     string    `json:"amount"`
	} `json:"entries"`
}

func (o *NATSOracle) PendingBacklog(ctx context.Context) (*BacklogView, error) {
	entry, err := o.state.Get(ctx, "backlog")
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return &BacklogView{}, nil
		}
		return nil, fmt.Errorf("read backlog: %w", err)
	}

	var doc backlogDoc
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, fmt.Errorf("malformed backlog: %w", err)
	}

	view := &BacklogView{
		LastApplied: doc.LastApplied,
		Tail:        doc.Tail,
		Entries:     make([]BacklogEntry, 0, len(doc.Entries)),
	}
	for _, e := range doc.Entries {
		amount, err := sdkmath.LegacyNewDecFromStr(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("malformed backlog amount %q: %w", e.Amount, err)
		}
		view.Entries = append(view.Entries, BacklogEntry{
			Sender:     e.Sender,
			Instrument: e.Instrument,
			Kind:       BacklogKind(e.Kind),
			Amount:     amount,
		})
	}
	return view, nil
}

// RelayIdentityResolver looks up the operator and venue-account identities
// the bridge assigned to a pool's relay channel.
func RelayIdentityResolver(ctx context.Context, js jetstream.JetStream) (func(uint64) (uuid.UUID, uuid.UUID, error), error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: relayIdentBucket})
	if err != nil {
		return nil, fmt.Errorf("open identity bucket: %w", err)
	}

	type identityDoc struct {
		Operator uuid.UUID `json:"operator"`
		Account  uuid.UUID `json:"account"`
	}

	return func(poolID uint64) (uuid.UUID, uuid.UUID, error) {
		lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		entry, err := kv.Get(lookupCtx, fmt.Sprintf("%d", poolID))
		if err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("no relay identities for pool %d: %w", poolID, err)
		}
		var doc identityDoc
		if err := json.Unmarshal(entry.Value(), &doc); err != nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("malformed identities for pool %d: %w", poolID, err)
		}
		if doc.Operator == uuid.Nil || doc.Account == uuid.Nil {
			return uuid.Nil, uuid.Nil, fmt.Errorf("incomplete identities for pool %d", poolID)
		}
		return doc.Operator, doc.Account, nil
	}, nil
}

// NATSAssets publishes transfer instructions to the asset bridge. Token
// precision is static configuration; the bridge owns actual custody.
type NATSAssets struct {
	js     jetstream.JetStream
	tokens map[string]uint8
}

func NewNATSAssets(js jetstream.JetStream, tokens map[string]uint8) *NATSAssets {
	return &NATSAssets{js: js, tokens: tokens}
}

func (a *NATSAssets) Resolve(token string) (Asset, bool) {
	decimals, ok := a.tokens[token]
	if !ok {
		return nil, false
	}
	return &natsAsset{js: a.js, token: token, decimals: decimals}, true
}

type natsAsset struct {
	js       jetstream.JetStream
	token    string
	decimals uint8
}

type assetCommand struct {
	Op      string    `json:"op"` // transfer_from | transfer | approve
	Token   string    `json:"token"`
	Owner   uuid.UUID `json:"owner,omitempty"`
	To      uuid.UUID `json:"to,omitempty"`
	Spender uuid.UUID `json:"spender,omitempty"`
	Amount  string    `json:"amount"`
	SentUs  int64     `json:"sent_us"`
}

func (a *natsAsset) publish(ctx context.Context, cmd assetCommand) error {
	cmd.Token = a.token
	cmd.SentUs = time.Now().UnixMicro()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal asset command: %w", err)
	}
	subject := fmt.Sprintf("vault.assets.%s.%s", a.token, cmd.Op)
	if _, err := a.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (a *natsAsset) TransferFrom(ctx context.Context, owner, to uuid.UUID, amount sdkmath.Int) error {
	return a.publish(ctx, assetCommand{Op: "transfer_from", Owner: owner, To: to, Amount: amount.String()})
}

func (a *natsAsset) Transfer(ctx context.Context, to uuid.UUID, amount sdkmath.Int) error {
	return a.publish(ctx, assetCommand{Op: "transfer", To: to, Amount: amount.String()})
}

func (a *natsAsset) Approve(ctx context.Context, spender uuid.UUID, amount sdkmath.Int) error {
	return a.publish(ctx, assetCommand{Op: "approve", Spender: spender, Amount: amount.String()})
}

func (a *natsAsset) Decimals() uint8 { return a.decimals }

// EnsureAssetStream creates the stream capturing outbound asset commands.
func EnsureAssetStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_ASSETS",
		Subjects:  []string{"vault.assets.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    168 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create asset stream: %w", err)
	}
	return nil
}
