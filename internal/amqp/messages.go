package amqp

import (
	"encoding/json"
	"time"
)

// Event types routed through the ledger events queue.
const (
	EventTransactionPosted  = "transaction.posted"
	EventTransactionDeleted = "transaction.deleted"
)

// LedgerEvent is the lightweight message published after a balance-
// affecting write. It carries references only; the consumer re-reads
// current state from the store.
type LedgerEvent struct {
	Type          string    `json:"type"`
	UserID        string    `json:"user_id"`
	AccountID     string    `json:"account_id"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(eventType, userID, accountID, transactionID string) *LedgerEvent {
	return &LedgerEvent{
		Type:          eventType,
		UserID:        userID,
		AccountID:     accountID,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON parses an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
