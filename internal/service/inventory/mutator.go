package inventory

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
)

const (
	defaultUpdateReason = "stock update"
	defaultSetReason    = "manual adjustment"
)

// UpdateStock меняет остаток товара на delta (положительный означает приход,
// отрицательный расход). Остаток не может уйти ниже нуля.
func (s *Service) UpdateStock(ctx context.Context, productID string, delta int64, opts MutationOptions) (StockChange, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockChange{}, domain.NewValidationError("productId", "is required")
	}
	if delta == 0 {
		return StockChange{}, domain.NewValidationError("quantity", "must not be zero")
	}
	opts = opts.withDefaults()
	if opts.Reason == "" {
		opts.Reason = defaultUpdateReason
	}

	change, err := txn.WithTransaction(ctx, s.orch, s.txOptions("update stock"),
		func(ctx context.Context, tx domain.Tx) (StockChange, error) {
			product, entry, err := s.move(ctx, tx, productID, delta, movement{
				kind:    domain.EntryKindMutation,
				reason:  opts.Reason,
				actorID: opts.ActorID,
				orderID: opts.OrderID,
				notes:   opts.Notes,
			})
			if err != nil {
				return StockChange{}, err
			}
			return StockChange{Product: product, Entry: &entry}, nil
		})
	if err != nil {
		s.fail(err, "update stock", log.Fields{"product_id": productID, "delta": delta})
		return StockChange{}, err
	}

	s.observe(*change.Entry)
	s.logger.WithFields(log.Fields{
		"product_id": productID,
		"delta":      delta,
		"stock":      change.Product.StockQuantity,
		"actor_id":   opts.ActorID,
	}).Info("stock updated")
	return change, nil
}

// SetStock устанавливает абсолютный остаток. Разница с текущим значением
// считается внутри транзакции; увеличение пишется как приход, уменьшение
// как корректировка. Совпадение с текущим остатком ничего не меняет.
func (s *Service) SetStock(ctx context.Context, productID string, target int64, opts MutationOptions) (StockChange, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockChange{}, domain.NewValidationError("productId", "is required")
	}
	opts = opts.withDefaults()
	if opts.Reason == "" {
		opts.Reason = defaultSetReason
	}

	var observed int64
	if target < 0 {
		if current, err := s.products.Get(ctx, productID); err == nil {
			observed = current.StockQuantity
		}
		return StockChange{}, &domain.AdjustmentError{
			ProductID:         productID,
			PreviousQuantity:  observed,
			AttemptedQuantity: target,
			Err:               domain.NewValidationError("stockQuantity", "must be non-negative"),
		}
	}

	change, err := txn.WithTransaction(ctx, s.orch, s.txOptions("set stock"),
		func(ctx context.Context, tx domain.Tx) (StockChange, error) {
			current, err := tx.Products().Get(ctx, productID)
			if err != nil {
				return StockChange{}, err
			}
			observed = current.StockQuantity
			if target == current.StockQuantity {
				return StockChange{Product: current}, nil
			}

			typ := domain.MovementAddition
			if target < current.StockQuantity {
				typ = domain.MovementAdjustment
			}
			product, entry, err := s.write(ctx, tx, current, target, movement{
				kind:    domain.EntryKindMutation,
				typ:     typ,
				reason:  opts.Reason,
				actorID: opts.ActorID,
				orderID: opts.OrderID,
				notes:   opts.Notes,
			})
			if err != nil {
				return StockChange{}, err
			}
			return StockChange{Product: product, Entry: &entry}, nil
		})
	if err != nil {
		s.fail(err, "set stock", log.Fields{"product_id": productID, "target": target})
		return StockChange{}, &domain.AdjustmentError{
			ProductID:         productID,
			PreviousQuantity:  observed,
			AttemptedQuantity: target,
			Err:               err,
		}
	}

	if change.Entry != nil {
		s.observe(*change.Entry)
		s.logger.WithFields(log.Fields{
			"product_id": productID,
			"previous":   change.Entry.PreviousQuantity,
			"stock":      target,
			"actor_id":   opts.ActorID,
		}).Info("stock set")
	}
	return change, nil
}

// AdjustmentFailure извлекает значения остатка из ошибки SetStock.
func AdjustmentFailure(err error) (*domain.AdjustmentError, bool) {
	var adjErr *domain.AdjustmentError
	if errors.As(err, &adjErr) {
		return adjErr, true
	}
	return nil, false
}
