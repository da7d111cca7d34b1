package inventory

import (
	"context"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// ValidateStock проверяет, хватает ли остатка на каждую позицию. Ничего не
// меняет и не открывает транзакцию: результат верен на момент чтения.
// Строки объединяются так же, как при резервировании, поэтому успешная
// проверка означает, что резерв той же корзины пройдёт при неизменном остатке.
func (s *Service) ValidateStock(ctx context.Context, items []domain.StockLine) (domain.StockValidation, error) {
	lines, err := mergeLines(items)
	if err != nil {
		return domain.StockValidation{}, err
	}

	result := domain.StockValidation{
		Valid: true,
		Items: make([]domain.ItemAvailability, 0, len(lines)),
	}
	for _, line := range lines {
		item := domain.ItemAvailability{ProductID: line.ProductID, Requested: line.Quantity}

		product, err := s.products.Get(ctx, line.ProductID)
		switch {
		case domain.IsNotFound(err):
		case err != nil:
			return domain.StockValidation{}, err
		default:
			item.Found = true
			item.Available = product.StockQuantity
			item.InStock = product.StockQuantity >= line.Quantity
		}

		result.Items = append(result.Items, item)
		if !item.InStock {
			result.Valid = false
			result.OutOfStockItems = append(result.OutOfStockItems, item)
		}
	}
	return result, nil
}
