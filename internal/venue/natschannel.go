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

// NATSChannel is a RelayChannel backed by NATS JetStream. Requests to the
// venue bridge are published as JSON commands on vault.relay.{pool}.{op};
// the bridge mirrors each channel's token balances into a JetStream
// key-value bucket so BalanceOf reads are local.
type NATSChannel struct {
	js       jetstream.JetStream
	balances jetstream.KeyValue
	poolID   uint64
	operator uuid.UUID
	account  uuid.UUID
}

const relayBalanceBucket = "VAULT_RELAY_BALANCES"

type relayCommand struct {
	Op      string `json:"op"` // submit | claim | authorize | link
	PoolID  uint64 `json:"pool_id"`
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Request []byte `json:"request,omitempty"`
	SentUs  int64  `json:"sent_us"`
}

// NATSDialer opens NATSChannels. Operator and venue-account identities for
// each pool are assigned by the bridge and supplied through the resolver.
type NATSDialer struct {
	js      jetstream.JetStream
	resolve func(poolID uint64) (operator, account uuid.UUID, err error)
}

func NewNATSDialer(js jetstream.JetStream, resolve func(uint64) (uuid.UUID, uuid.UUID, error)) *NATSDialer {
	return &NATSDialer{js: js, resolve: resolve}
}

func (d *NATSDialer) Open(ctx context.Context, poolID uint64) (RelayChannel, error) {
	operator, account, err := d.resolve(poolID)
	if err != nil {
		return nil, fmt.Errorf("resolve relay identities for pool %d: %w", poolID, err)
	}

	kv, err := d.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: relayBalanceBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("open balance bucket: %w", err)
	}

	return &NATSChannel{
		js:       d.js,
		balances: kv,
		poolID:   poolID,
		operator: operator,
		account:  account,
	}, nil
}

func (c *NATSChannel) publish(ctx context.Context, cmd relayCommand) error {
	cmd.PoolID = c.poolID
	cmd.SentUs = time.Now().UnixMicro()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal relay command: %w", err)
	}

	subject := fmt.Sprintf("vault.relay.%d.%s", c.poolID, cmd.Op)
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *NATSChannel) Submit(ctx context.Context, encoded []byte) error {
	return c.publish(ctx, relayCommand{Op: "submit", Request: encoded})
}

func (c *NATSChannel) Claim(ctx context.Context, token string, amount sdkmath.Int) error {
	return c.publish(ctx, relayCommand{Op: "claim", Token: token, Amount: amount.String()})
}

func (c *NATSChannel) AuthorizeSpender(ctx context.Context, token string) error {
	return c.publish(ctx, relayCommand{Op: "authorize", Token: token})
}

func (c *NATSChannel) Link(ctx context.Context) error {
	return c.publish(ctx, relayCommand{Op: "link"})
}

func (c *NATSChannel) BalanceOf(ctx context.Context, token string) (sdkmath.Int, error) {
	key := fmt.Sprintf("%d.%s", c.poolID, token)

	entry, err := c.balances.Get(ctx, key)
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return sdkmath.ZeroInt(), nil
		}
		return sdkmath.Int{}, fmt.Errorf("read relay balance %s: %w", key, err)
	}

	amount, ok := sdkmath.NewIntFromString(string(entry.Value()))
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("malformed relay balance %s: %q", key, entry.Value())
	}
	return amount, nil
}

func (c *NATSChannel) ExternalOperator() uuid.UUID { return c.operator }
func (c *NATSChannel) VenueAccount() uuid.UUID     { return c.account }

// EnsureRelayStream creates the stream capturing outbound relay commands.
func EnsureRelayStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_RELAY",
		Subjects:  []string{"vault.relay.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    168 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create relay stream: %w", err)
	}
	return nil
}
