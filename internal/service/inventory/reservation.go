package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
	"github.com/vladislavdragonenkov/stockd/internal/service/txn"
)

// ReservationOptions — параметры резервирования под заказ.
type ReservationOptions struct {
	OrderID string
	ActorID string
	// Timeout: срок удержания; ноль означает domain.DefaultReservationTimeout.
	Timeout time.Duration
}

// ReserveInventory резервирует все позиции одной транзакцией. Если хотя бы
// одной позиции не хватает, не резервируется ничего. Повторяющиеся товары
// резервируются одной записью на суммарное количество.
func (s *Service) ReserveInventory(ctx context.Context, items []domain.StockLine, opts ReservationOptions) (domain.Reservation, error) {
	opts.OrderID = strings.TrimSpace(opts.OrderID)
	if opts.OrderID == "" {
		return domain.Reservation{}, domain.NewValidationError("orderId", "is required")
	}
	lines, err := mergeLines(items)
	if err != nil {
		return domain.Reservation{}, err
	}
	if opts.Timeout < 0 {
		return domain.Reservation{}, domain.NewValidationError("timeout", "must be positive")
	}
	if opts.Timeout == 0 {
		opts.Timeout = domain.DefaultReservationTimeout
	}
	actor := MutationOptions{ActorID: opts.ActorID}.withDefaults().ActorID
	reason := "Reservation for order #" + opts.OrderID

	reservation, err := txn.WithTransaction(ctx, s.orch, s.txOptions("reserve inventory"),
		func(ctx context.Context, tx domain.Tx) (domain.Reservation, error) {
			expiresAt := s.now().Add(opts.Timeout)
			result := domain.Reservation{OrderID: opts.OrderID, ExpiresAt: expiresAt}
			for _, line := range lines {
				_, entry, err := s.move(ctx, tx, line.ProductID, -line.Quantity, movement{
					kind:      domain.EntryKindReservation,
					typ:       domain.MovementReduction,
					reason:    reason,
					actorID:   actor,
					orderID:   opts.OrderID,
					expiresAt: &expiresAt,
				})
				if err != nil {
					return domain.Reservation{}, err
				}
				result.Entries = append(result.Entries, entry)
			}
			return result, nil
		})
	if err != nil {
		s.fail(err, "reserve inventory", log.Fields{"order_id": opts.OrderID, "lines": len(lines)})
		return domain.Reservation{}, err
	}

	s.observe(reservation.Entries...)
	s.logger.WithFields(log.Fields{
		"order_id":   opts.OrderID,
		"lines":      len(reservation.Entries),
		"expires_at": reservation.ExpiresAt,
	}).Info("inventory reserved")
	return reservation, nil
}

// ReleaseReservation возвращает на склад все ещё не снятые резервы заказа.
// Повторный вызов после снятия ничего не меняет и не считается ошибкой.
func (s *Service) ReleaseReservation(ctx context.Context, orderID, actorID string) (domain.Release, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Release{}, domain.NewValidationError("orderId", "is required")
	}
	actor := MutationOptions{ActorID: actorID}.withDefaults().ActorID

	release, err := txn.WithTransaction(ctx, s.orch, s.txOptions("release reservation"),
		func(ctx context.Context, tx domain.Tx) (domain.Release, error) {
			entries, found, err := s.releaseActive(ctx, tx, orderID, actor)
			if err != nil {
				return domain.Release{}, err
			}
			if !found {
				return domain.Release{}, &domain.NotFoundError{Entity: "reservation", ID: orderID}
			}
			return domain.Release{OrderID: orderID, Entries: entries}, nil
		})
	if err != nil {
		s.fail(err, "release reservation", log.Fields{"order_id": orderID})
		return domain.Release{}, err
	}

	s.observe(release.Entries...)
	s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"released": len(release.Entries),
	}).Info("reservation released")
	return release, nil
}

// releaseActive снимает активные резервы заказа внутри tx. found=false, если
// у заказа вообще не было резервов.
func (s *Service) releaseActive(ctx context.Context, tx domain.Tx, orderID, actorID string) (_ []domain.LedgerEntry, found bool, _ error) {
	entries, err := tx.Ledger().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	var released []domain.LedgerEntry
	for i := range entries {
		reserved := entries[i]
		if reserved.Kind != domain.EntryKindReservation {
			continue
		}
		found = true
		if !reserved.IsActiveReservation() {
			continue
		}

		_, entry, err := s.move(ctx, tx, reserved.ProductID, reserved.Quantity, movement{
			kind:    domain.EntryKindRelease,
			typ:     domain.MovementAddition,
			reason:  "Release reservation for order #" + orderID,
			actorID: actorID,
			orderID: orderID,
			notes:   fmt.Sprintf("releases entry %s", reserved.ID),
		})
		if err != nil {
			return nil, true, err
		}

		now := s.now()
		if err := tx.Ledger().MarkReleased(ctx, reserved.ID, now, domain.ReleaseNote(now, actorID)); err != nil {
			return nil, true, err
		}
		released = append(released, entry)
	}
	return released, found, nil
}

// ExpiredReservations возвращает просроченные и не снятые резервы.
// Автоматически они не снимаются.
func (s *Service) ExpiredReservations(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.ledger.ListExpiredReservations(ctx, s.now(), limit)
}

func validateLines(items []domain.StockLine) error {
	if len(items) == 0 {
		return domain.NewValidationError("items", "must not be empty")
	}
	for i, line := range items {
		if err := line.Validate(); err != nil {
			var vErr *domain.ValidationError
			if errors.As(err, &vErr) {
				return domain.NewValidationError(fmt.Sprintf("items[%d].%s", i, vErr.Field), vErr.Message)
			}
			return err
		}
	}
	return nil
}

// mergeLines проверяет строки, складывает количества одного товара и
// упорядочивает результат по идентификатору. Пакеты с общими товарами
// захватывают строки в одном порядке.
func mergeLines(items []domain.StockLine) ([]domain.StockLine, error) {
	if err := validateLines(items); err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(items))
	for _, line := range items {
		if totals[line.ProductID] > math.MaxInt64-line.Quantity {
			return nil, domain.NewValidationError("items",
				fmt.Sprintf("total quantity for product %q is too large", line.ProductID))
		}
		totals[line.ProductID] += line.Quantity
	}

	merged := make([]domain.StockLine, 0, len(totals))
	for id, quantity := range totals {
		merged = append(merged, domain.StockLine{ProductID: id, Quantity: quantity})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
