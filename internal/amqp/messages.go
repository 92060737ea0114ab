package amqp

import (
	"time"

	json "github.com/goccy/go-json"

	"financas/internal/core"
)

// LedgerEventMessage is the envelope published for every ledger mutation.
// ID lets consumers drop redeliveries.
type LedgerEventMessage struct {
	ID          string           `json:"id"`
	Event       core.LedgerEvent `json:"event"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// NewLedgerEventMessage wraps ev in a fresh envelope.
func NewLedgerEventMessage(ev core.LedgerEvent) *LedgerEventMessage {
	return &LedgerEventMessage{
		ID:          core.NewID(),
		Event:       ev,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes a message and checks it carries an
// event.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event.Type == "" || msg.Event.UserID == "" {
		return nil, errMalformedEvent
	}
	return &msg, nil
}
