package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Intents are the JSON payloads carried by queue entries and forwarded to
// the relay channel. Responses are what the operator hands back through
// advance. sdkmath.Int marshals as a decimal string, which keeps amounts
// exact across the wire.

var ErrEmptyResponse = errors.New("empty operator response")

type DepositSpotIntent struct {
	BaseToken   string      `json:"base_token"`
	QuoteToken  string      `json:"quote_token"`
	BaseAmount  sdkmath.Int `json:"base_amount"`
	QuoteAmount sdkmath.Int `json:"quote_amount"`
	MinQuote    sdkmath.Int `json:"min_quote"`
	MaxQuote    sdkmath.Int `json:"max_quote"`
	Receiver    uuid.UUID   `json:"receiver"`
}

type DepositPerpIntent struct {
	Token    string      `json:"token"`
	Amount   sdkmath.Int `json:"amount"`
	Receiver uuid.UUID   `json:"receiver"`
}

type WithdrawSpotIntent struct {
	BaseToken   string      `json:"base_token"`
	QuoteToken  string      `json:"quote_token"`
	BaseShares  sdkmath.Int `json:"base_shares"`
	QuoteShares sdkmath.Int `json:"quote_shares"`
	Receiver    uuid.UUID   `json:"receiver"`
}

type WithdrawPerpIntent struct {
	Token    string      `json:"token"`
	Shares   sdkmath.Int `json:"shares"`
	Receiver uuid.UUID   `json:"receiver"`
}

// DepositPerpResponse reports how the venue settled a perp deposit: the
// amount it accepted and the shares it assigned.
type DepositPerpResponse struct {
	Settled sdkmath.Int `json:"settled"`
	Shares  sdkmath.Int `json:"shares"`
}

// DepositSpotResponse covers both legs of a spot deposit.
type DepositSpotResponse struct {
	BaseSettled  sdkmath.Int `json:"base_settled"`
	QuoteSettled sdkmath.Int `json:"quote_settled"`
	BaseShares   sdkmath.Int `json:"base_shares"`
	QuoteShares  sdkmath.Int `json:"quote_shares"`
}

// WithdrawResponse optionally carries the amount the venue released. When
// present it caps the locally reconciled release; when absent the local
// computation stands alone.
type WithdrawResponse struct {
	Released *sdkmath.Int `json:"released,omitempty"`
}

// WithdrawSpotResponse is the two-leg form of WithdrawResponse.
type WithdrawSpotResponse struct {
	BaseReleased  *sdkmath.Int `json:"base_released,omitempty"`
	QuoteReleased *sdkmath.Int `json:"quote_released,omitempty"`
}

// ReleaseRequest instructs the venue, through the relay, to move released
// withdrawal funds into the relay's local balance for claiming.
type ReleaseRequest struct {
	Token    string      `json:"token"`
	Amount   sdkmath.Int `json:"amount"`
	Receiver uuid.UUID   `json:"receiver"`
}

func EncodeIntent(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode intent: %w", err)
	}
	return payload, nil
}

func DecodeIntent(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode intent: %w", err)
	}
	return nil
}

// DecodeResponse parses an operator response. A nil or empty response body
// is a deliberate skip signal, reported as ErrEmptyResponse.
func DecodeResponse(response []byte, v any) error {
	if len(response) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(response, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
