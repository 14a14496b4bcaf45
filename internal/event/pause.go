package event

import "fmt"

type PauseChanged struct {
	Deposits    bool   `json:"deposits"`
	Withdrawals bool   `json:"withdrawals"`
	Claims      bool   `json:"claims"`
	Revision    uint64 `json:"revision"`
}

func (e *PauseChanged) IdempotencyKey() string {
	return fmt.Sprintf("pause-changed:%d", e.Revision)
}

func (e *PauseChanged) EventType() EventType { return EventTypePauseChanged }
func (e *PauseChanged) PoolID() *uint64      { return nil }
func (e *PauseChanged) EntryID() uint64      { return 0 }
