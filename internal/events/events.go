// Package events carries ledger change notifications to external brokers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"khata/internal/core"
)

type Type string

const (
	SaleRecorded    Type = "sale.recorded"
	SaleUpdated     Type = "sale.updated"
	SaleDeleted     Type = "sale.deleted"
	PaymentRecorded Type = "payment.recorded"
	PaymentDeleted  Type = "payment.deleted"
)

// LedgerEvent is published after a ledger-changing transaction commits.
type LedgerEvent struct {
	EventID     string     `json:"event_id"`
	Type        Type       `json:"type"`
	BuyerID     int64      `json:"buyer_id"`
	EntityID    int64      `json:"entity_id"`
	Amount      core.Money `json:"amount"`
	Outstanding core.Money `json:"outstanding"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func NewLedgerEvent(t Type, buyerID, entityID int64, amount, outstanding core.Money) LedgerEvent {
	return LedgerEvent{
		EventID:     uuid.NewString(),
		Type:        t,
		BuyerID:     buyerID,
		EntityID:    entityID,
		Amount:      amount,
		Outstanding: outstanding,
		OccurredAt:  time.Now().UTC(),
	}
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, err
	}
	return e, nil
}

// Publisher delivers ledger events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e LedgerEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, LedgerEvent) error { return nil }
func (Noop) Close() error                               { return nil }
