package event

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

type PoolAdded struct {
	Pool uint64 `json:"pool"`
	Kind string `json:"kind"`
}

func (e *PoolAdded) IdempotencyKey() string {
	return fmt.Sprintf("pool-added:%d", e.Pool)
}

func (e *PoolAdded) EventType() EventType { return EventTypePoolAdded }
func (e *PoolAdded) PoolID() *uint64      { return &e.Pool }
func (e *PoolAdded) EntryID() uint64      { return 0 }

type TokensAdded struct {
	Pool     uint64        `json:"pool"`
	Tokens   []string      `json:"tokens"`
	Hardcaps []sdkmath.Int `json:"hardcaps"`
	Decimals []uint8       `json:"decimals"`
}

func (e *TokensAdded) IdempotencyKey() string {
	return fmt.Sprintf("tokens-added:%d:%v", e.Pool, e.Tokens)
}

func (e *TokensAdded) EventType() EventType { return EventTypeTokensAdded }
func (e *TokensAdded) PoolID() *uint64      { return &e.Pool }
func (e *TokensAdded) EntryID() uint64      { return 0 }

type HardcapUpdated struct {
	Pool     uint64        `json:"pool"`
	Tokens   []string      `json:"tokens"`
	Hardcaps []sdkmath.Int `json:"hardcaps"`
	Revision uint64        `json:"revision"`
}

func (e *HardcapUpdated) IdempotencyKey() string {
	return fmt.Sprintf("hardcap-updated:%d:%d", e.Pool, e.Revision)
}

func (e *HardcapUpdated) EventType() EventType { return EventTypeHardcapUpdated }
func (e *HardcapUpdated) PoolID() *uint64      { return &e.Pool }
func (e *HardcapUpdated) EntryID() uint64      { return 0 }

type InstrumentRebound struct {
	Token      string `json:"token"`
	Instrument uint32 `json:"instrument"`
	Revision   uint64 `json:"revision"`
}

func (e *InstrumentRebound) IdempotencyKey() string {
	return fmt.Sprintf("instrument-rebound:%s:%d:%d", e.Token, e.Instrument, e.Revision)
}

func (e *InstrumentRebound) EventType() EventType { return EventTypeInstrumentRebound }
func (e *InstrumentRebound) PoolID() *uint64      { return nil }
func (e *InstrumentRebound) EntryID() uint64      { return 0 }
