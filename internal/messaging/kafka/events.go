package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// EventType определяет тип входящего события
type EventType string

const (
	// События workflow заказов
	EventTypeOrderPaid     EventType = "order.paid"
	EventTypeOrderCanceled EventType = "order.canceled"

	// События каталога
	EventTypeProductUpserted EventType = "product.upserted"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "inventory.order.events"
	TopicCatalogEvents   = "catalog.product.events"
	TopicStockEvents     = "inventory.stock.events"
	TopicDeadLetterQueue = "inventory.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEventLine описывает позицию заказа в событии.
type OrderEventLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType EventType        `json:"event_type"`
	OrderID   string           `json:"order_id"`
	ActorID   string           `json:"actor_id,omitempty"`
	Lines     []OrderEventLine `json:"lines,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Order переводит событие в доменный заказ.
func (e *OrderEvent) Order() domain.Order {
	order := domain.Order{ID: e.OrderID, Lines: make([]domain.OrderLine, 0, len(e.Lines))}
	for _, line := range e.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return order
}

// ProductEvent — карточка товара из каталога. Остатка не содержит.
type ProductEvent struct {
	EventType EventType `json:"event_type"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StockEnvelope — обёртка outbox-сообщения в topic остатков.
type StockEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter — сообщение, которое не удалось обработать.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID string, lines ...OrderEventLine) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		Lines:     lines,
		Timestamp: time.Now().UTC(),
	}
}

// NewProductEvent создает событие каталога
func NewProductEvent(productID, name, sku string) *ProductEvent {
	return &ProductEvent{
		EventType: EventTypeProductUpserted,
		ProductID: productID,
		Name:      name,
		SKU:       sku,
		Timestamp: time.Now().UTC(),
	}
}

// ParseOrderEvent парсит OrderEvent из сообщения
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("%w: order event: %v", ErrMalformedMessage, err)
	}
	return &event, nil
}

// ParseProductEvent парсит ProductEvent из сообщения
func ParseProductEvent(message *sarama.ConsumerMessage) (*ProductEvent, error) {
	var event ProductEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("%w: product event: %v", ErrMalformedMessage, err)
	}
	return &event, nil
}

// ParseDeadLetter парсит сообщение из DLQ
func ParseDeadLetter(value []byte) (*DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(value, &letter); err != nil {
		return nil, fmt.Errorf("%w: dead letter: %v", ErrMalformedMessage, err)
	}
	return &letter, nil
}
