package event

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

type Claimed struct {
	Pool     uint64      `json:"pool"`
	Token    string      `json:"token"`
	User     uuid.UUID   `json:"user"`
	FeePart  sdkmath.Int `json:"fee_part"`
	UserPart sdkmath.Int `json:"user_part"`
	Revision uint64      `json:"revision"`
}

func (e *Claimed) IdempotencyKey() string {
	return fmt.Sprintf("claimed:%d:%s:%s:%d", e.Pool, e.Token, e.User, e.Revision)
}

func (e *Claimed) EventType() EventType { return EventTypeClaimed }
func (e *Claimed) PoolID() *uint64      { return &e.Pool }
func (e *Claimed) EntryID() uint64      { return 0 }

// ClaimReverted compensates a Claimed event whose external payout could not
// be executed. The recorded split is returned to the user's fee and pending
// buckets, so the log replays to the pre-claim state.
type ClaimReverted struct {
	Pool     uint64      `json:"pool"`
	Token    string      `json:"token"`
	User     uuid.UUID   `json:"user"`
	FeePart  sdkmath.Int `json:"fee_part"`
	UserPart sdkmath.Int `json:"user_part"`
	Revision uint64      `json:"revision"`
	Reason   string      `json:"reason"`
}

func (e *ClaimReverted) IdempotencyKey() string {
	return fmt.Sprintf("claim_reverted:%d:%s:%s:%d", e.Pool, e.Token, e.User, e.Revision)
}

func (e *ClaimReverted) EventType() EventType { return EventTypeClaimReverted }
func (e *ClaimReverted) PoolID() *uint64      { return &e.Pool }
func (e *ClaimReverted) EntryID() uint64      { return 0 }
