package domain

import "strings"

// OrderLine — позиция оплаченного заказа, переданная workflow заказов.
type OrderLine struct {
	ProductID string
	Quantity  int64
}

// Order — минимальное представление заказа, нужное для списания остатков.
// Создание и оплата заказа живут во внешнем сервисе.
type Order struct {
	ID    string
	Lines []OrderLine
}

// Validate проверяет заказ перед списанием.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return NewValidationError("orderId", "is required")
	}
	for _, line := range o.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return NewValidationError("productId", "is required")
		}
		if line.Quantity <= 0 {
			return NewValidationError("quantity", "must be greater than zero")
		}
	}
	return nil
}

// FulfillmentReason формирует причину записи журнала при списании по заказу.
func FulfillmentReason(orderID string) string {
	return "Order #" + orderID
}
