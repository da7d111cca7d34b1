package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/inventory"
)

// InventoryService — операции склада, которые запускаются событиями.
type InventoryService interface {
	FulfillOrder(ctx context.Context, order domain.Order) (inventory.Fulfillment, error)
	ReleaseReservation(ctx context.Context, orderID, actorID string) (domain.Release, error)
	SyncProduct(ctx context.Context, info inventory.ProductInfo) (domain.Product, error)
}

type inventoryHandler struct {
	svc    InventoryService
	logger *log.Entry
}

// NewInventoryHandler возвращает обработчик событий заказов и каталога.
// Событие определяется по полю event_type, неизвестные типы пропускаются.
func NewInventoryHandler(svc InventoryService, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "kafka-inventory-handler")
	}
	h := &inventoryHandler{svc: svc, logger: logger}
	return h.handle
}

func (h *inventoryHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var head struct {
		EventType EventType `json:"event_type"`
	}
	if err := json.Unmarshal(message.Value, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch head.EventType {
	case EventTypeOrderPaid:
		return h.orderPaid(ctx, message)
	case EventTypeOrderCanceled:
		return h.orderCanceled(ctx, message)
	case EventTypeProductUpserted:
		return h.productUpserted(ctx, message)
	default:
		h.logger.WithFields(log.Fields{
			"topic":      message.Topic,
			"event_type": head.EventType,
		}).Debug("skip unsupported event")
		return nil
	}
}

func (h *inventoryHandler) orderPaid(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := ParseOrderEvent(message)
	if err != nil {
		return err
	}

	result, err := h.svc.FulfillOrder(ctx, event.Order())
	if err != nil {
		return fmt.Errorf("fulfill order %s: %w", event.OrderID, err)
	}

	h.logger.WithFields(log.Fields{
		"order_id":          event.OrderID,
		"already_fulfilled": result.AlreadyFulfilled,
		"released":          len(result.Released),
		"fulfilled":         len(result.Fulfilled),
	}).Info("order paid event processed")
	return nil
}

func (h *inventoryHandler) orderCanceled(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := ParseOrderEvent(message)
	if err != nil {
		return err
	}

	release, err := h.svc.ReleaseReservation(ctx, event.OrderID, event.ActorID)
	if domain.IsNotFound(err) {
		h.logger.WithField("order_id", event.OrderID).Debug("canceled order has no reservations")
		return nil
	}
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", event.OrderID, err)
	}

	h.logger.WithFields(log.Fields{
		"order_id": event.OrderID,
		"released": len(release.Entries),
	}).Info("order canceled event processed")
	return nil
}

func (h *inventoryHandler) productUpserted(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := ParseProductEvent(message)
	if err != nil {
		return err
	}

	product, err := h.svc.SyncProduct(ctx, inventory.ProductInfo{ID: event.ProductID, Name: event.Name, SKU: event.SKU})
	if err != nil {
		return fmt.Errorf("sync product %s: %w", event.ProductID, err)
	}

	h.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"version":    product.Version,
	}).Debug("product event processed")
	return nil
}
