package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"vaultledger/internal/core"

	"github.com/google/uuid"
)

// Command is a parsed operator command ready for the engine.
type Command struct {
	Type    string
	Advance *core.AdvanceCommand
	Pauses  *PauseCommand
}

// PauseCommand toggles the operation gates.
type PauseCommand struct {
	Deposits    bool
	Withdrawals bool
	Claims      bool
}

// ParseRawCommand converts a RawCommand into a typed command based on its
// subject. Field names use snake_case to match the operator's producers.
func ParseRawCommand(raw RawCommand) (*Command, error) {
	switch {
	case strings.HasPrefix(raw.Subject, "vault.ops.advance"):
		cmd, err := parseAdvance(raw.Data)
		if err != nil {
			return nil, err
		}
		return &Command{Type: "Advance", Advance: cmd}, nil
	case strings.HasPrefix(raw.Subject, "vault.ops.pause"):
		cmd, err := parsePause(raw.Data)
		if err != nil {
			return nil, err
		}
		return &Command{Type: "SetPauses", Pauses: cmd}, nil
	default:
		return nil, fmt.Errorf("unknown command subject: %s", raw.Subject)
	}
}

type advanceJSON struct {
	CommandID string          `json:"command_id"`
	Operator  string          `json:"operator"`
	EntryID   uint64          `json:"entry_id"`
	Response  json.RawMessage `json:"response,omitempty"`
}

func parseAdvance(data []byte) (*core.AdvanceCommand, error) {
	var j advanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Advance: %w", err)
	}

	commandID, err := uuid.Parse(j.CommandID)
	if err != nil {
		return nil, fmt.Errorf("parse command_id: %w", err)
	}
	operator, err := uuid.Parse(j.Operator)
	if err != nil {
		return nil, fmt.Errorf("parse operator: %w", err)
	}

	return &core.AdvanceCommand{
		CommandID: commandID,
		Operator:  operator,
		EntryID:   j.EntryID,
		Response:  j.Response,
	}, nil
}

type pauseJSON struct {
	Deposits    bool `json:"deposits"`
	Withdrawals bool `json:"withdrawals"`
	Claims      bool `json:"claims"`
}

func parsePause(data []byte) (*PauseCommand, error) {
	var j pauseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetPauses: %w", err)
	}
	return &PauseCommand{
		Deposits:    j.Deposits,
		Withdrawals: j.Withdrawals,
		Claims:      j.Claims,
	}, nil
}
