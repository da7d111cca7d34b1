package domain

import (
	"encoding/json"
	"time"
)

const (
	// AggregateProduct: тип агрегата для outbox-событий остатка.
	AggregateProduct = "product"
	// EventStockChanged: остаток товара изменился.
	EventStockChanged = "stock.changed"
)

// StockChangedEvent содержит полезную нагрузку события об изменении остатка.
type StockChangedEvent struct {
	ProductID        string       `json:"product_id"`
	EntryID          string       `json:"entry_id"`
	Kind             EntryKind    `json:"kind"`
	Type             MovementType `json:"type"`
	Quantity         int64        `json:"quantity"`
	PreviousQuantity int64        `json:"previous_quantity"`
	NewQuantity      int64        `json:"new_quantity"`
	OrderID          string       `json:"order_id,omitempty"`
	OccurredAt       time.Time    `json:"occurred_at"`
}

// NewStockChangedMessage строит outbox-сообщение по записи журнала.
func NewStockChangedMessage(entry LedgerEntry) (OutboxMessage, error) {
	payload, err := json.Marshal(StockChangedEvent{
		ProductID:        entry.ProductID,
		EntryID:          entry.ID,
		Kind:             entry.Kind,
		Type:             entry.Type,
		Quantity:         entry.Quantity,
		PreviousQuantity: entry.PreviousQuantity,
		NewQuantity:      entry.NewQuantity,
		OrderID:          entry.OrderID,
		OccurredAt:       entry.CreatedAt,
	})
	if err != nil {
		return OutboxMessage{}, err
	}
	return OutboxMessage{
		AggregateType: AggregateProduct,
		AggregateID:   entry.ProductID,
		EventType:     EventStockChanged,
		Payload:       payload,
	}, nil
}
