package core

import "time"

// EventType names a ledger mutation.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventGoalCreated        EventType = "goal.created"
	EventGoalUpdated        EventType = "goal.updated"
	EventGoalDeleted        EventType = "goal.deleted"
	EventGoalAdjusted       EventType = "goal.adjusted"
)

// LedgerEvent is emitted after a successful mutation. Transaction and Goal
// hold snapshots of the affected records, when there are any.
type LedgerEvent struct {
	Type        EventType    `json:"type"`
	UserID      string       `json:"userId"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Goal        *Goal        `json:"goal,omitempty"`
	Delta       *Money       `json:"delta,omitempty"`
	At          time.Time    `json:"at"`
}

// NewLedgerEvent stamps an event with the current time.
func NewLedgerEvent(typ EventType, userID string) LedgerEvent {
	return LedgerEvent{Type: typ, UserID: userID, At: time.Now().UTC()}
}
