package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
)

// ProcessOrderInventory списывает остатки по оплаченному заказу внутри
// транзакции вызывающего. Неизвестные товары пропускаются, списание
// ограничивается доступным остатком. Конфликт записи возвращается вызывающему,
// чтобы его оркестратор повторил транзакцию целиком.
func (s *Service) ProcessOrderInventory(ctx context.Context, order domain.Order, tx domain.Tx) error {
	_, err := s.fulfill(ctx, tx, order)
	return err
}

func (s *Service) fulfill(ctx context.Context, tx domain.Tx, order domain.Order) ([]domain.LedgerEntry, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	entries := make([]domain.LedgerEntry, 0, len(order.Lines))
	for _, line := range order.Lines {
		current, err := tx.Products().Get(ctx, line.ProductID)
		if domain.IsNotFound(err) {
			s.logger.WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": line.ProductID,
			}).Warn("product not found, skipping fulfillment line")
			continue
		}
		if err != nil {
			return nil, err
		}

		applied := min(line.Quantity, current.StockQuantity)
		m := movement{
			kind:    domain.EntryKindFulfillment,
			typ:     domain.MovementReduction,
			reason:  domain.FulfillmentReason(order.ID),
			actorID: DefaultActorID,
			orderID: order.ID,
		}
		if applied < line.Quantity {
			m.notes = fmt.Sprintf("requested %d, available %d; clamped to zero", line.Quantity, current.StockQuantity)
			s.logger.WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": line.ProductID,
				"requested":  line.Quantity,
				"available":  current.StockQuantity,
			}).Warn("fulfillment exceeds stock, clamping to zero")
		}

		_, entry, err := s.write(ctx, tx, current, current.StockQuantity-applied, m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Fulfillment — итог списания заказа.
type Fulfillment struct {
	OrderID string
	// AlreadyFulfilled: заказ был списан раньше, ничего не изменено.
	AlreadyFulfilled bool
	Released         []domain.LedgerEntry
	Fulfilled        []domain.LedgerEntry
}

// FulfillOrder списывает заказ в собственной транзакции. Активный резерв
// заказа сначала возвращается на склад, затем остаток списывается, так что
// зарезервированный и оплаченный заказ уменьшает остаток один раз. Повторное
// событие об оплате ничего не меняет.
func (s *Service) FulfillOrder(ctx context.Context, order domain.Order) (Fulfillment, error) {
	if err := order.Validate(); err != nil {
		return Fulfillment{}, err
	}

	result, err := txn.WithTransaction(ctx, s.orch, s.txOptions("fulfill order"),
		func(ctx context.Context, tx domain.Tx) (Fulfillment, error) {
			history, err := tx.Ledger().ListByOrder(ctx, order.ID)
			if err != nil {
				return Fulfillment{}, err
			}
			for i := range history {
				if history[i].Kind == domain.EntryKindFulfillment {
					return Fulfillment{OrderID: order.ID, AlreadyFulfilled: true}, nil
				}
			}

			released, _, err := s.releaseActive(ctx, tx, order.ID, DefaultActorID)
			if err != nil {
				return Fulfillment{}, err
			}
			fulfilled, err := s.fulfill(ctx, tx, order)
			if err != nil {
				return Fulfillment{}, err
			}
			return Fulfillment{OrderID: order.ID, Released: released, Fulfilled: fulfilled}, nil
		})
	if err != nil {
		s.fail(err, "fulfill order", log.Fields{"order_id": order.ID})
		return Fulfillment{}, err
	}

	if result.AlreadyFulfilled {
		s.logger.WithField("order_id", order.ID).Info("order already fulfilled, skipping")
		return result, nil
	}
	s.observe(result.Released...)
	s.observe(result.Fulfilled...)
	s.logger.WithFields(log.Fields{
		"order_id":  order.ID,
		"released":  len(result.Released),
		"fulfilled": len(result.Fulfilled),
	}).Info("order fulfilled")
	return result, nil
}
