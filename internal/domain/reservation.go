package domain

import (
	"strings"
	"time"
)

// StockLine содержит запрошенное количество конкретного товара.
type StockLine struct {
	ProductID string
	Quantity  int64
}

// Validate проверяет строку запроса.
func (l StockLine) Validate() error {
	if strings.TrimSpace(l.ProductID) == "" {
		return NewValidationError("id", "is required")
	}
	if l.Quantity <= 0 {
		return NewValidationError("quantity", "must be greater than zero")
	}
	return nil
}

// DefaultReservationTimeout задаёт срок удержания резерва по умолчанию.
const DefaultReservationTimeout = 30 * time.Minute

// Reservation описывает результат успешного резервирования пакета позиций.
type Reservation struct {
	OrderID   string
	ExpiresAt time.Time
	Entries   []LedgerEntry
}

// Release описывает результат снятия резервов заказа.
type Release struct {
	OrderID string
	// Entries: новые записи release; пусто, если резервы уже были сняты.
	Entries []LedgerEntry
}

// ItemAvailability показывает доступность одной строки корзины.
type ItemAvailability struct {
	ProductID string
	Requested int64
	Available int64
	InStock   bool
	Found     bool
}

// StockValidation содержит результат проверки корзины.
type StockValidation struct {
	Valid           bool
	Items           []ItemAvailability
	OutOfStockItems []ItemAvailability
}
