package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"vaultledger/internal/ingestion"
)

func rawFromJSON(t *testing.T, subject string, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseAdvance(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "550e8400-e29b-41d4-a716-446655440000",
		"operator":   "660e8400-e29b-41d4-a716-446655440001",
		"entry_id":   uint64(42),
		"response": map[string]interface{}{
			"settled": "1000000",
			"shares":  "1000000",
		},
	}

	raw := rawFromJSON(t, "vault.ops.advance.1", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cmd.Type != "Advance" || cmd.Advance == nil {
		t.Fatalf("expected Advance command, got %+v", cmd)
	}
	if cmd.Advance.EntryID != 42 {
		t.Errorf("entry_id: got %d, want 42", cmd.Advance.EntryID)
	}
	if cmd.Advance.CommandID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("command_id: got %s", cmd.Advance.CommandID)
	}
	if len(cmd.Advance.Response) == 0 {
		t.Error("response payload must be preserved")
	}
}

func TestParseAdvanceDecline(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "550e8400-e29b-41d4-a716-446655440000",
		"operator":   "660e8400-e29b-41d4-a716-446655440001",
		"entry_id":   uint64(7),
	}

	raw := rawFromJSON(t, "vault.ops.advance.1", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(cmd.Advance.Response) != 0 {
		t.Errorf("absent response must stay empty, got %q", cmd.Advance.Response)
	}
}

func TestParsePause(t *testing.T) {
	payload := map[string]interface{}{
		"deposits":    true,
		"withdrawals": false,
		"claims":      true,
	}

	raw := rawFromJSON(t, "vault.ops.pause.all", payload)
	cmd, err := ingestion.ParseRawCommand(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Type != "SetPauses" || cmd.Pauses == nil {
		t.Fatalf("expected SetPauses command, got %+v", cmd)
	}
	if !cmd.Pauses.Deposits || cmd.Pauses.Withdrawals || !cmd.Pauses.Claims {
		t.Errorf("pauses: got %+v", cmd.Pauses)
	}
}

func TestParseUnknownSubject_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Subject: "vault.ops.unknown", Data: []byte(`{}`)}
	if _, err := ingestion.ParseRawCommand(raw); err == nil {
		t.Fatal("expected error for unknown subject")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Subject: "vault.ops.advance.1", Data: []byte(`{invalid json`)}
	if _, err := ingestion.ParseRawCommand(raw); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"command_id": "not-a-uuid",
		"operator":   "also-not-a-uuid",
		"entry_id":   uint64(1),
	}

	raw := rawFromJSON(t, "vault.ops.advance.1", payload)
	if _, err := ingestion.ParseRawCommand(raw); err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
